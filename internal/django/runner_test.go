package django

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

type call struct {
	name string
	args []string
	env  []string
}

type fakeRunner struct {
	calls   []call
	failOn  string // subcommand that fails
	failErr error
}

func (r *fakeRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	r.calls = append(r.calls, call{name: name, args: args, env: env})
	for _, a := range args {
		if a == r.failOn {
			return r.failErr
		}
	}
	return nil
}

func newPostConfig(r Runner) *PostConfig {
	return &PostConfig{
		Runner: r,
		Django: config.DjangoConfig{Python: "python3", ManagePath: "/dsmr/manage.py"},
		Admin:  config.AdminConfig{User: "admin", Email: "admin@example.com", Password: "secret"},
		Log:    zap.NewNop().Sugar(),
	}
}

func TestPostConfig_OrderAndArgs(t *testing.T) {
	r := &fakeRunner{}
	if err := newPostConfig(r).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(r.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(r.calls))
	}

	wantSub := []string{"migrate", "collectstatic", "dsmr_superuser"}
	for i, sub := range wantSub {
		c := r.calls[i]
		if c.name != "python3" {
			t.Errorf("call %d name = %q, want python3", i, c.name)
		}
		if c.args[0] != "/dsmr/manage.py" || c.args[1] != sub {
			t.Errorf("call %d args = %v, want manage.py %s", i, c.args, sub)
		}
	}

	// Admin credentials travel via the environment of the last command only.
	env := strings.Join(r.calls[2].env, " ")
	if !strings.Contains(env, config.EnvAdminUser+"=admin") {
		t.Errorf("superuser env = %v, missing admin user", r.calls[2].env)
	}
	if len(r.calls[0].env) != 0 {
		t.Errorf("migrate env = %v, want empty", r.calls[0].env)
	}
}

func TestPostConfig_StopsOnFailure(t *testing.T) {
	boom := errors.New("exit status 1")
	r := &fakeRunner{failOn: "collectstatic", failErr: boom}

	err := newPostConfig(r).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if len(r.calls) != 2 {
		t.Errorf("calls = %d, want 2 (no superuser after collectstatic failure)", len(r.calls))
	}
}

func TestPostConfig_MigrateFailureRunsNothingElse(t *testing.T) {
	r := &fakeRunner{failOn: "migrate", failErr: errors.New("exit status 1")}

	if err := newPostConfig(r).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(r.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(r.calls))
	}
}
