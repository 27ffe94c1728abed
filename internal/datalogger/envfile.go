// Package datalogger generates the env file consumed by the standalone
// remote datalogger client. The client runs on a separate host next to the
// smart meter and pushes telegrams to the DSMR-reader API.
package datalogger

import (
	"fmt"
	"os"
	"strings"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// Input methods recognized by the datalogger client.
const (
	MethodNetwork = "network socket"
	MethodSerial  = "serial"
)

// Render produces the full env file content for the given settings, or an
// error if any required field is missing. Nothing is written on error, so a
// consumer never sees a partially valid file.
func Render(cfg config.DataloggerConfig) ([]byte, error) {
	required := []struct {
		env   string
		value string
	}{
		{config.EnvDLAPIHosts, cfg.APIHosts},
		{config.EnvDLAPIKeys, cfg.APIKeys},
		{config.EnvDLInputMethod, cfg.InputMethod},
	}
	for _, f := range required {
		if f.value == "" {
			return nil, fmt.Errorf("required setting %s is not set", f.env)
		}
	}

	var b strings.Builder

	switch cfg.InputMethod {
	case MethodNetwork:
		if cfg.NetworkHost == "" {
			return nil, fmt.Errorf("input method %q requires %s", MethodNetwork, config.EnvDLNetworkHost)
		}
		if cfg.NetworkPort == "" {
			return nil, fmt.Errorf("input method %q requires %s", MethodNetwork, config.EnvDLNetworkPort)
		}
		writeLine(&b, config.EnvDLNetworkHost, cfg.NetworkHost)
		writeLine(&b, config.EnvDLNetworkPort, cfg.NetworkPort)
	case MethodSerial:
		if cfg.SerialPort == "" {
			return nil, fmt.Errorf("input method %q requires %s", MethodSerial, config.EnvDLSerialPort)
		}
		if cfg.SerialBaudrate == "" {
			return nil, fmt.Errorf("input method %q requires %s", MethodSerial, config.EnvDLSerialBaudrate)
		}
		writeLine(&b, config.EnvDLSerialPort, cfg.SerialPort)
		writeLine(&b, config.EnvDLSerialBaudrate, cfg.SerialBaudrate)
	default:
		return nil, fmt.Errorf("unsupported input method %q (expected %q or %q)",
			cfg.InputMethod, MethodNetwork, MethodSerial)
	}

	writeLine(&b, config.EnvDLAPIHosts, cfg.APIHosts)
	writeLine(&b, config.EnvDLAPIKeys, cfg.APIKeys)
	writeLine(&b, config.EnvDLInputMethod, cfg.InputMethod)

	if cfg.Timeout != "" {
		writeLine(&b, config.EnvDLTimeout, cfg.Timeout)
	}
	if cfg.Sleep != "" {
		writeLine(&b, config.EnvDLSleep, cfg.Sleep)
	}
	if cfg.DebugLogging != "" {
		writeLine(&b, config.EnvDLDebugLogging, cfg.DebugLogging)
	}

	return []byte(b.String()), nil
}

// WriteFile renders the settings and writes them to cfg.EnvFile in a single
// write, replacing any earlier content.
func WriteFile(cfg config.DataloggerConfig) error {
	content, err := Render(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.EnvFile, content, 0o644); err != nil {
		return fmt.Errorf("writing datalogger env file: %w", err)
	}
	return nil
}

func writeLine(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}
