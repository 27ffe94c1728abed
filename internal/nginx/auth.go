package nginx

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// ErrMissingCredentials signals incomplete basic-auth configuration. The
// individual missing fields are warned about before this is returned.
var ErrMissingCredentials = errors.New("basic-auth credentials incomplete")

// AuthConfigurator conditionally protects the web interface with HTTP
// basic-auth enforced by the reverse proxy.
type AuthConfigurator struct {
	Nginx     config.NginxConfig
	Validator Validator
	Log       *zap.SugaredLogger
}

// Apply generates the htpasswd file and activates the auth_basic directives.
// Repeated runs leave exactly one active directive pair in place.
func (a *AuthConfigurator) Apply(ctx context.Context) error {
	if !a.Nginx.AuthEnabled {
		a.Log.Infof("HTTP basic-auth disabled, leaving proxy config untouched")
		return nil
	}

	// Batch validation: report every missing field, then fail once.
	missing := false
	if a.Nginx.AuthUser == "" {
		a.Log.Warnf("%s must be set when basic-auth is enabled", config.EnvAuthUser)
		missing = true
	}
	if a.Nginx.AuthPassword == "" {
		a.Log.Warnf("%s must be set when basic-auth is enabled", config.EnvAuthPassword)
		missing = true
	}
	if missing {
		return ErrMissingCredentials
	}

	if err := WriteHtpasswd(a.Nginx.HtpasswdPath, a.Nginx.AuthUser, a.Nginx.AuthPassword); err != nil {
		return err
	}

	data, err := os.ReadFile(a.Nginx.ConfigPath)
	if err != nil {
		return fmt.Errorf("reading proxy config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parsing proxy config: %w", err)
	}

	changed, err := enableBasicAuth(cfg, a.Nginx.HtpasswdPath)
	if err != nil {
		return err
	}
	if changed {
		if err := os.WriteFile(a.Nginx.ConfigPath, cfg.Serialize(), 0o644); err != nil {
			return fmt.Errorf("writing proxy config: %w", err)
		}
	}
	if err := a.Validator.Validate(ctx); err != nil {
		return fmt.Errorf("proxy config invalid after enabling basic-auth: %w", err)
	}
	a.Log.Infof("HTTP basic-auth enabled for user %s", a.Nginx.AuthUser)
	return nil
}

// enableBasicAuth activates the auth_basic directive pair in the first
// server block: an already active pair is left alone, a commented pair is
// uncommented, and a missing pair is inserted after the listen directives.
func enableBasicAuth(cfg *Config, htpasswdPath string) (bool, error) {
	servers := cfg.Servers()
	if len(servers) == 0 {
		return false, fmt.Errorf("proxy config has no server block")
	}
	server := servers[0]

	var authBasic, authFile *Directive
	for _, d := range server.Block {
		switch d.Name {
		case "auth_basic":
			if authBasic == nil || (authBasic.Commented && !d.Commented) {
				authBasic = d
			}
		case "auth_basic_user_file":
			if authFile == nil || (authFile.Commented && !d.Commented) {
				authFile = d
			}
		}
	}

	changed := false
	if authBasic != nil && authBasic.Commented {
		authBasic.Commented = false
		changed = true
	}
	if authFile != nil {
		if authFile.Commented {
			authFile.Commented = false
			changed = true
		}
		if len(authFile.Args) != 1 || authFile.Args[0] != htpasswdPath {
			authFile.Args = []string{htpasswdPath}
			changed = true
		}
	}

	if authBasic == nil || authFile == nil {
		idx := lastListenIndex(server)
		if idx == -1 {
			return false, fmt.Errorf("server block has no listen directive")
		}
		var inserted []*Directive
		if authBasic == nil {
			inserted = append(inserted, &Directive{Name: "auth_basic", Args: []string{`"DSMR-reader"`}})
		}
		if authFile == nil {
			inserted = append(inserted, &Directive{Name: "auth_basic_user_file", Args: []string{htpasswdPath}})
		}
		server.Block = append(server.Block[:idx+1],
			append(inserted, server.Block[idx+1:]...)...)
		changed = true
	}

	return changed, nil
}
