package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAdminPort = 4444
	DefaultAppPort   = 42233
	DefaultHappsPath = "/var/lib/configure-holochain/config.yaml"
)

// happsFallback is where an unset happs.path looks for a manifest. Hosts
// without one there run with usage counting off.
var happsFallback = DefaultHappsPath

// Error is a configuration problem: a missing or unreadable file, an
// unsupported format, or a referenced resource that does not exist.
// It is fatal to the current run.
type Error struct {
	Subject string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(subject string, format string, args ...any) error {
	return &Error{Subject: subject, Err: fmt.Errorf(format, args...)}
}

type Config struct {
	Conductor ConductorConfig `yaml:"conductor"`
	Identity  IdentityConfig  `yaml:"identity"`
	Happs     HappsConfig     `yaml:"happs"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Server    ServerConfig    `yaml:"server"`
	Schedule  string          `yaml:"schedule"`
}

type ConductorConfig struct {
	Host           string        `yaml:"host"`
	AdminPort      int           `yaml:"admin_port"`
	AppPort        int           `yaml:"app_port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type IdentityConfig struct {
	ConfigPath  string `yaml:"config_path"`
	PasswordEnv string `yaml:"password_env"`
}

type HappsConfig struct {
	Path        string `yaml:"path"`
	UIDOverride string `yaml:"uid_override"`
}

type DeliveryConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads the YAML file at path (skipped when path is empty),
// applies overrides from v (may be nil), fills defaults and validates.
func Load(path string, v *viper.Viper) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Subject: path, Err: err}
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, &Error{Subject: path, Err: err}
		}
	}

	if v != nil {
		cfg.applyOverrides(v)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Conductor.Host == "" {
		c.Conductor.Host = "localhost"
	}
	if c.Conductor.AdminPort == 0 {
		c.Conductor.AdminPort = DefaultAdminPort
	}
	if c.Conductor.AppPort == 0 {
		c.Conductor.AppPort = DefaultAppPort
	}
	if c.Conductor.RequestTimeout == 0 {
		c.Conductor.RequestTimeout = 30 * time.Second
	}
	if c.Conductor.Retry.MaxAttempts == 0 {
		c.Conductor.Retry.MaxAttempts = 5
	}
	if c.Conductor.Retry.BaseDelay == 0 {
		c.Conductor.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Conductor.Retry.Multiplier == 0 {
		c.Conductor.Retry.Multiplier = 2
	}
	if c.Conductor.Retry.MaxDelay == 0 {
		c.Conductor.Retry.MaxDelay = 8 * time.Second
	}
	if c.Happs.Path == "" {
		if _, err := os.Stat(happsFallback); err == nil {
			c.Happs.Path = happsFallback
		}
	}
	if c.Identity.PasswordEnv == "" {
		c.Identity.PasswordEnv = "DEVICE_SEED_DEFAULT_PASSWORD"
	}
	if c.Delivery.Timeout == 0 {
		c.Delivery.Timeout = 15 * time.Second
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Schedule == "" {
		c.Schedule = "@every 15m"
	}
}

func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"conductor.admin_port": c.Conductor.AdminPort,
		"conductor.app_port":   c.Conductor.AppPort,
		"server.port":          c.Server.Port,
	} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s out of range: %d", name, port))
		}
	}
	if c.Conductor.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("conductor.retry.max_attempts must be at least 1"))
	}
	if c.Conductor.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("conductor.retry.multiplier must be at least 1"))
	}
	if c.Conductor.Retry.BaseDelay < 0 || c.Conductor.Retry.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("conductor.retry delays must not be negative"))
	}
	if len(errs) > 0 {
		return &Error{Subject: "validate", Err: errors.Join(errs...)}
	}
	return nil
}

// Password reads the bundle password from the configured environment
// variable. The caller owns the returned slice and should wipe it.
func (c *Config) Password() []byte {
	return []byte(os.Getenv(c.Identity.PasswordEnv))
}
