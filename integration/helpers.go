//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath returns the path to the built CLI binary, building it on demand.
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../dsmr-bootstrap",
		"./dsmr-bootstrap",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../dsmr-bootstrap", "../cmd/dsmr-bootstrap")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../dsmr-bootstrap")
	return abs
}

// createTestConfig writes a bootstrap config pointing all paths into a
// temp directory and returns the config path.
func createTestConfig(t *testing.T, dir string) string {
	t.Helper()
	configPath := filepath.Join(dir, "bootstrap.toml")

	config := `
[database]
host = "127.0.0.1"
port = "1"
user = "dsmr"
name = "dsmrreader"
wait_attempts = 1

[datalogger]
env_file = "` + filepath.Join(dir, ".env") + `"

[journal]
path = "` + filepath.Join(dir, "bootstrap.db") + `"

[nginx]
config_path = "` + filepath.Join(dir, "dsmr-webinterface.conf") + `"
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

// dataloggerEnv returns a complete network-socket datalogger environment.
func dataloggerEnv() []string {
	return append(os.Environ(),
		"DATALOGGER_INPUT_METHOD=network socket",
		"DATALOGGER_NETWORK_HOST=10.0.0.5",
		"DATALOGGER_NETWORK_PORT=23",
		"DATALOGGER_API_HOSTS=https://api.example.com",
		"DATALOGGER_API_KEYS=k1",
	)
}
