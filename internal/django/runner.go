// Package django drives the web application's management commands after
// the database becomes reachable.
package django

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// Runner executes one management command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, env []string, name string, args ...string) error
}

// ExecRunner runs commands through os/exec, streaming output to the
// container's stdout/stderr.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}

// PostConfig runs migrations, collects static assets and provisions the
// admin account, strictly in that order. Each command's failure aborts the
// sequence; the admin provisioning command is idempotent on the username.
type PostConfig struct {
	Runner Runner
	Django config.DjangoConfig
	Admin  config.AdminConfig
	Log    *zap.SugaredLogger
}

// Run executes the three post-config commands in order.
func (p *PostConfig) Run(ctx context.Context) error {
	steps := []struct {
		desc string
		env  []string
		args []string
	}{
		{
			desc: "applying database migrations",
			args: []string{p.Django.ManagePath, "migrate", "--noinput"},
		},
		{
			desc: "collecting static assets",
			args: []string{p.Django.ManagePath, "collectstatic", "--noinput"},
		},
		{
			desc: "provisioning admin account",
			env: []string{
				config.EnvAdminUser + "=" + p.Admin.User,
				config.EnvAdminEmail + "=" + p.Admin.Email,
				config.EnvAdminPassword + "=" + p.Admin.Password,
			},
			args: []string{p.Django.ManagePath, "dsmr_superuser"},
		},
	}

	for _, step := range steps {
		p.Log.Infof("%s", step.desc)
		if err := p.Runner.Run(ctx, step.env, p.Django.Python, step.args...); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}
	return nil
}
