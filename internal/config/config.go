package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Flavor selects which bootstrap pipeline a config is validated for.
type Flavor string

const (
	FlavorApp        Flavor = "app"
	FlavorDatalogger Flavor = "datalogger"
)

// Config holds all bootstrap configuration, resolved once at startup.
// Values come from an optional TOML file overlaid by environment variables;
// the struct is treated as immutable for the rest of the run.
type Config struct {
	Debug      bool             `toml:"debug"`
	Admin      AdminConfig      `toml:"admin"`
	Database   DatabaseConfig   `toml:"database"`
	Device     DeviceConfig     `toml:"device"`
	Datalogger DataloggerConfig `toml:"datalogger"`
	Nginx      NginxConfig      `toml:"nginx"`
	Django     DjangoConfig     `toml:"django"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Journal    JournalConfig    `toml:"journal"`
}

// AdminConfig holds the web admin account to provision.
type AdminConfig struct {
	User     string `toml:"user"`
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// DatabaseConfig holds connection parameters for the readiness gate.
type DatabaseConfig struct {
	Engine       string        `toml:"engine"` // postgresql or mysql
	Host         string        `toml:"host"`
	Port         string        `toml:"port"`
	User         string        `toml:"user"`
	Name         string        `toml:"name"`
	WaitAttempts int           `toml:"wait_attempts"`
	WaitInterval time.Duration `toml:"wait_interval"`
}

// DeviceConfig holds the optional serial device settings.
type DeviceConfig struct {
	Path        string        `toml:"path"`
	Wait        bool          `toml:"wait"`
	WaitTimeout time.Duration `toml:"wait_timeout"`
}

// DataloggerConfig holds settings for the remote datalogger env file.
type DataloggerConfig struct {
	EnvFile        string `toml:"env_file"`
	InputMethod    string `toml:"input_method"`
	NetworkHost    string `toml:"network_host"`
	NetworkPort    string `toml:"network_port"`
	SerialPort     string `toml:"serial_port"`
	SerialBaudrate string `toml:"serial_baudrate"`
	APIHosts       string `toml:"api_hosts"`
	APIKeys        string `toml:"api_keys"`
	Timeout        string `toml:"timeout"`
	Sleep          string `toml:"sleep"`
	DebugLogging   string `toml:"debug_logging"`
}

// NginxConfig holds reverse proxy TLS and basic-auth settings.
type NginxConfig struct {
	Binary       string `toml:"binary"`
	ConfigPath   string `toml:"config_path"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
	AuthEnabled  bool   `toml:"auth_enabled"`
	AuthUser     string `toml:"auth_user"`
	AuthPassword string `toml:"auth_password"`
	HtpasswdPath string `toml:"htpasswd_path"`
}

// DjangoConfig locates the application's management command entry point.
type DjangoConfig struct {
	Python     string `toml:"python"`
	ManagePath string `toml:"manage_path"`
}

// SupervisorConfig holds the terminal hand-off settings.
type SupervisorConfig struct {
	// Command is the supervisor invocation, run in foreground mode.
	Command []string `toml:"command"`
	// Override, when set, replaces the supervisor entirely.
	Override string `toml:"override"`
}

// JournalConfig locates the local bootstrap journal.
type JournalConfig struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Engine:       "postgresql",
			Port:         "5432",
			WaitAttempts: 60,
			WaitInterval: time.Second,
		},
		Device: DeviceConfig{
			Path:        "/dev/ttyUSB0",
			WaitTimeout: 30 * time.Second,
		},
		Datalogger: DataloggerConfig{
			EnvFile: "/dsmr/.env",
		},
		Nginx: NginxConfig{
			Binary:       "nginx",
			ConfigPath:   "/etc/nginx/conf.d/dsmr-webinterface.conf",
			CertFile:     "/etc/ssl/private/fullchain.pem",
			KeyFile:      "/etc/ssl/private/privkey.pem",
			HtpasswdPath: "/etc/nginx/htpasswd",
		},
		Django: DjangoConfig{
			Python:     "python3",
			ManagePath: "/dsmr/manage.py",
		},
		Supervisor: SupervisorConfig{
			Command: []string{"/usr/bin/supervisord", "-n"},
		},
		Journal: JournalConfig{
			Path:    "/var/lib/dsmr/bootstrap.db",
			Enabled: true,
		},
	}
}

// Load reads configuration from an optional TOML file, then overlays
// environment variables. Environment always wins over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Environment variable names. The DATALOGGER_* names double as the keys
// written to the generated datalogger env file.
const (
	EnvDebug = "DSMRREADER_LOGLEVEL_DEBUG"

	EnvAdminUser     = "DSMRREADER_ADMIN_USER"
	EnvAdminEmail    = "DSMRREADER_ADMIN_EMAIL"
	EnvAdminPassword = "DSMRREADER_ADMIN_PASSWORD"

	EnvDBEngine       = "DJANGO_DATABASE_ENGINE"
	EnvDBHost         = "DJANGO_DATABASE_HOST"
	EnvDBPort         = "DJANGO_DATABASE_PORT"
	EnvDBUser         = "DJANGO_DATABASE_USER"
	EnvDBName         = "DJANGO_DATABASE_NAME"
	EnvDBWaitAttempts = "DATABASE_WAIT_RETRIES"

	EnvDevicePath = "DSMR_SERIAL_DEVICE"
	EnvDeviceWait = "DSMR_WAIT_FOR_DEVICE"

	EnvDLInputMethod    = "DATALOGGER_INPUT_METHOD"
	EnvDLNetworkHost    = "DATALOGGER_NETWORK_HOST"
	EnvDLNetworkPort    = "DATALOGGER_NETWORK_PORT"
	EnvDLSerialPort     = "DATALOGGER_SERIAL_PORT"
	EnvDLSerialBaudrate = "DATALOGGER_SERIAL_BAUDRATE"
	EnvDLAPIHosts       = "DATALOGGER_API_HOSTS"
	EnvDLAPIKeys        = "DATALOGGER_API_KEYS"
	EnvDLTimeout        = "DATALOGGER_TIMEOUT"
	EnvDLSleep          = "DATALOGGER_SLEEP"
	EnvDLDebugLogging   = "DATALOGGER_DEBUG_LOGGING"

	EnvTLSEnabled   = "ENABLE_NGINX_SSL"
	EnvAuthEnabled  = "ENABLE_HTTP_AUTH"
	EnvAuthUser     = "HTTP_AUTH_USERNAME"
	EnvAuthPassword = "HTTP_AUTH_PASSWORD"

	EnvOverrideCommand = "DSMR_BOOTSTRAP_COMMAND"
)

func (c *Config) applyEnv() {
	setString(&c.Admin.User, EnvAdminUser)
	setString(&c.Admin.Email, EnvAdminEmail)
	setString(&c.Admin.Password, EnvAdminPassword)

	setString(&c.Database.Engine, EnvDBEngine)
	setString(&c.Database.Host, EnvDBHost)
	setString(&c.Database.Port, EnvDBPort)
	setString(&c.Database.User, EnvDBUser)
	setString(&c.Database.Name, EnvDBName)
	setInt(&c.Database.WaitAttempts, EnvDBWaitAttempts)

	setString(&c.Device.Path, EnvDevicePath)
	setBool(&c.Device.Wait, EnvDeviceWait)

	setString(&c.Datalogger.InputMethod, EnvDLInputMethod)
	setString(&c.Datalogger.NetworkHost, EnvDLNetworkHost)
	setString(&c.Datalogger.NetworkPort, EnvDLNetworkPort)
	setString(&c.Datalogger.SerialPort, EnvDLSerialPort)
	setString(&c.Datalogger.SerialBaudrate, EnvDLSerialBaudrate)
	setString(&c.Datalogger.APIHosts, EnvDLAPIHosts)
	setString(&c.Datalogger.APIKeys, EnvDLAPIKeys)
	setString(&c.Datalogger.Timeout, EnvDLTimeout)
	setString(&c.Datalogger.Sleep, EnvDLSleep)
	setString(&c.Datalogger.DebugLogging, EnvDLDebugLogging)

	setBool(&c.Nginx.TLSEnabled, EnvTLSEnabled)
	setBool(&c.Nginx.AuthEnabled, EnvAuthEnabled)
	setString(&c.Nginx.AuthUser, EnvAuthUser)
	setString(&c.Nginx.AuthPassword, EnvAuthPassword)

	setString(&c.Supervisor.Override, EnvOverrideCommand)
	setBool(&c.Debug, EnvDebug)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.EqualFold(strings.TrimSpace(v), "true")
	}
}

// Validate checks that every credential and connection field the given
// flavor depends on is present. It performs no side effects; the caller
// aborts the whole bootstrap on error.
func (c *Config) Validate(flavor Flavor) error {
	type field struct {
		env   string
		value string
	}

	var required []field
	switch flavor {
	case FlavorApp:
		required = []field{
			{EnvAdminUser, c.Admin.User},
			{EnvAdminEmail, c.Admin.Email},
			{EnvAdminPassword, c.Admin.Password},
			{EnvDBHost, c.Database.Host},
			{EnvDBPort, c.Database.Port},
			{EnvDBUser, c.Database.User},
			{EnvDBName, c.Database.Name},
		}
	case FlavorDatalogger:
		required = []field{
			{EnvDLAPIHosts, c.Datalogger.APIHosts},
			{EnvDLAPIKeys, c.Datalogger.APIKeys},
			{EnvDLInputMethod, c.Datalogger.InputMethod},
		}
	default:
		return fmt.Errorf("unknown bootstrap flavor %q", flavor)
	}

	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("required setting %s is not set", f.env)
		}
	}
	return nil
}
