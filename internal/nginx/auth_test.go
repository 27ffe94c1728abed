package nginx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

func writeAuthFixture(t *testing.T, conf string) (config.NginxConfig, *fakeValidator) {
	t.Helper()
	dir := t.TempDir()

	confPath := filepath.Join(dir, "dsmr-webinterface.conf")
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}

	return config.NginxConfig{
		AuthEnabled:  true,
		AuthUser:     "admin",
		AuthPassword: "secret",
		ConfigPath:   confPath,
		HtpasswdPath: filepath.Join(dir, "htpasswd"),
	}, &fakeValidator{}
}

func TestAuth_Disabled(t *testing.T) {
	cfg, v := writeAuthFixture(t, sampleConfig)
	cfg.AuthEnabled = false

	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}
	if err := c.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.HtpasswdPath); !os.IsNotExist(err) {
		t.Error("disabled auth must not write an htpasswd file")
	}
}

func TestAuth_MissingCredentialsBatchValidated(t *testing.T) {
	cfg, v := writeAuthFixture(t, sampleConfig)
	cfg.AuthUser = ""
	cfg.AuthPassword = ""

	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}
	err := c.Apply(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if _, statErr := os.Stat(cfg.HtpasswdPath); !os.IsNotExist(statErr) {
		t.Error("no htpasswd file may be written with incomplete credentials")
	}
	if v.calls != 0 {
		t.Error("validator must not run with incomplete credentials")
	}
}

func TestAuth_UncommentsExistingDirectives(t *testing.T) {
	cfg, v := writeAuthFixture(t, sampleConfig)
	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}

	if err := c.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(cfg.ConfigPath)
	text := string(data)
	if !strings.Contains(text, "auth_basic \"DSMR-reader\";") || strings.Contains(text, "# auth_basic \"DSMR-reader\";") {
		t.Errorf("auth_basic should be active:\n%s", text)
	}
	if !strings.Contains(text, "auth_basic_user_file "+cfg.HtpasswdPath+";") {
		t.Errorf("auth_basic_user_file should point at %s:\n%s", cfg.HtpasswdPath, text)
	}
	if v.calls != 1 {
		t.Errorf("validator calls = %d, want 1", v.calls)
	}
}

func TestAuth_InsertsWhenAbsent(t *testing.T) {
	conf := "server {\n    listen 80;\n    location / {\n        proxy_pass http://127.0.0.1:8000;\n    }\n}\n"
	cfg, v := writeAuthFixture(t, conf)
	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}

	if err := c.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(cfg.ConfigPath)
	text := string(data)
	if strings.Count(text, "auth_basic ") != 1 {
		t.Errorf("want exactly one auth_basic:\n%s", text)
	}
	if strings.Count(text, "auth_basic_user_file ") != 1 {
		t.Errorf("want exactly one auth_basic_user_file:\n%s", text)
	}
}

func TestAuth_IdempotentAcrossRuns(t *testing.T) {
	cfg, v := writeAuthFixture(t, sampleConfig)
	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}

	for i := 0; i < 3; i++ {
		if err := c.Apply(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	data, _ := os.ReadFile(cfg.ConfigPath)
	text := string(data)
	if got := strings.Count(text, "auth_basic "); got != 1 {
		t.Errorf("active auth_basic count = %d, want 1:\n%s", got, text)
	}
	if strings.Contains(text, "# auth_basic") {
		t.Errorf("no commented auth directive may remain:\n%s", text)
	}
}

func TestAuth_HtpasswdVerifies(t *testing.T) {
	cfg, v := writeAuthFixture(t, sampleConfig)
	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}

	if err := c.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.HtpasswdPath)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	user, hash, ok := strings.Cut(line, ":")
	if !ok || user != "admin" {
		t.Fatalf("htpasswd line = %q", line)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Errorf("hash does not verify against password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")); err == nil {
		t.Error("hash must not verify against a wrong password")
	}
}

func TestAuth_ValidationFailureIsFatal(t *testing.T) {
	cfg, v := writeAuthFixture(t, sampleConfig)
	v.err = errors.New("nginx: configuration file test failed")

	c := &AuthConfigurator{Nginx: cfg, Validator: v, Log: zap.NewNop().Sugar()}
	if err := c.Apply(context.Background()); err == nil {
		t.Fatal("expected validation error to propagate")
	}
}
