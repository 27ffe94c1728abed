package nginx

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// Validator checks a rewritten proxy config before it is handed to nginx.
type Validator interface {
	Validate(ctx context.Context) error
}

// CommandValidator validates by running the proxy binary in config-test mode.
type CommandValidator struct {
	Binary string
}

func (v CommandValidator) Validate(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, v.Binary, "-t")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s -t: %w (%s)", v.Binary, err, string(out))
	}
	return nil
}

// TLSConfigurator conditionally adds a TLS listener to the proxy config.
type TLSConfigurator struct {
	Nginx     config.NginxConfig
	Validator Validator
	Log       *zap.SugaredLogger
}

// Apply enables the TLS listener when configured. It is idempotent: a config
// that already carries an ssl listener is left untouched.
func (t *TLSConfigurator) Apply(ctx context.Context) error {
	if !t.Nginx.TLSEnabled {
		t.Log.Infof("nginx TLS disabled, leaving proxy config untouched")
		return nil
	}

	for _, f := range []string{t.Nginx.CertFile, t.Nginx.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("TLS enabled but certificate file missing: %s", f)
		}
	}

	data, err := os.ReadFile(t.Nginx.ConfigPath)
	if err != nil {
		return fmt.Errorf("reading proxy config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parsing proxy config: %w", err)
	}

	changed, err := enableTLS(cfg, t.Nginx.CertFile, t.Nginx.KeyFile)
	if err != nil {
		return err
	}
	if !changed {
		t.Log.Infof("proxy config already has a TLS listener")
		return nil
	}

	if err := os.WriteFile(t.Nginx.ConfigPath, cfg.Serialize(), 0o644); err != nil {
		return fmt.Errorf("writing proxy config: %w", err)
	}
	if err := t.Validator.Validate(ctx); err != nil {
		return fmt.Errorf("proxy config invalid after enabling TLS: %w", err)
	}
	t.Log.Infof("enabled TLS listener in %s", t.Nginx.ConfigPath)
	return nil
}

// enableTLS inserts the ssl listener and certificate directives into the
// first server block, right after its plaintext listen directive. Returns
// false when a TLS listener already exists.
func enableTLS(cfg *Config, certFile, keyFile string) (bool, error) {
	servers := cfg.Servers()
	if len(servers) == 0 {
		return false, fmt.Errorf("proxy config has no server block")
	}

	for _, server := range servers {
		if hasTLSListen(server) {
			return false, nil
		}
	}

	server := servers[0]
	idx := lastListenIndex(server)
	if idx == -1 {
		return false, fmt.Errorf("server block has no listen directive")
	}

	inserted := []*Directive{
		{Name: "listen", Args: []string{"443", "ssl"}},
		{Name: "ssl_certificate", Args: []string{certFile}},
		{Name: "ssl_certificate_key", Args: []string{keyFile}},
	}
	server.Block = append(server.Block[:idx+1],
		append(inserted, server.Block[idx+1:]...)...)
	return true, nil
}

func hasTLSListen(server *Directive) bool {
	for _, d := range server.Block {
		if d.Name != "listen" || d.Commented {
			continue
		}
		for _, a := range d.Args {
			if a == "ssl" {
				return true
			}
		}
	}
	return false
}

func lastListenIndex(server *Directive) int {
	idx := -1
	for i, d := range server.Block {
		if d.Name == "listen" && !d.Commented {
			idx = i
		}
	}
	return idx
}
