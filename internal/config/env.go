package config

import (
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "HPOS_STATS"

// legacyEnv lists the environment names older deployments set. They are
// consulted after the prefixed name.
var legacyEnv = map[string]string{
	"identity.config_path": "HPOS_CONFIG_PATH",
	"happs.path":           "CONFIGURE_HOLOCHAIN_YAML_PATH",
	"happs.uid_override":   "DEV_UID_OVERRIDE",
}

var overrideKeys = []string{
	"conductor.host",
	"conductor.admin_port",
	"conductor.app_port",
	"conductor.request_timeout",
	"conductor.retry.max_attempts",
	"conductor.retry.base_delay",
	"conductor.retry.multiplier",
	"conductor.retry.max_delay",
	"identity.config_path",
	"identity.password_env",
	"happs.path",
	"happs.uid_override",
	"delivery.endpoint",
	"delivery.timeout",
	"archive.dsn",
	"server.host",
	"server.port",
	"schedule",
}

// NewViper returns a viper instance with every overridable key bound to
// HPOS_STATS_<SECTION>_<KEY> and, where one exists, its legacy name.
func NewViper() *viper.Viper {
	v := viper.New()
	replacer := strings.NewReplacer(".", "_")
	for _, key := range overrideKeys {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(replacer.Replace(key))}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		_ = v.BindEnv(names...)
	}
	return v
}

func (c *Config) applyOverrides(v *viper.Viper) {
	if v.IsSet("conductor.host") {
		c.Conductor.Host = v.GetString("conductor.host")
	}
	if v.IsSet("conductor.admin_port") {
		c.Conductor.AdminPort = v.GetInt("conductor.admin_port")
	}
	if v.IsSet("conductor.app_port") {
		c.Conductor.AppPort = v.GetInt("conductor.app_port")
	}
	if v.IsSet("conductor.request_timeout") {
		c.Conductor.RequestTimeout = v.GetDuration("conductor.request_timeout")
	}
	if v.IsSet("conductor.retry.max_attempts") {
		c.Conductor.Retry.MaxAttempts = v.GetInt("conductor.retry.max_attempts")
	}
	if v.IsSet("conductor.retry.base_delay") {
		c.Conductor.Retry.BaseDelay = v.GetDuration("conductor.retry.base_delay")
	}
	if v.IsSet("conductor.retry.multiplier") {
		c.Conductor.Retry.Multiplier = v.GetFloat64("conductor.retry.multiplier")
	}
	if v.IsSet("conductor.retry.max_delay") {
		c.Conductor.Retry.MaxDelay = v.GetDuration("conductor.retry.max_delay")
	}
	if v.IsSet("identity.config_path") {
		c.Identity.ConfigPath = v.GetString("identity.config_path")
	}
	if v.IsSet("identity.password_env") {
		c.Identity.PasswordEnv = v.GetString("identity.password_env")
	}
	if v.IsSet("happs.path") {
		c.Happs.Path = v.GetString("happs.path")
	}
	if v.IsSet("happs.uid_override") {
		c.Happs.UIDOverride = v.GetString("happs.uid_override")
	}
	if v.IsSet("delivery.endpoint") {
		c.Delivery.Endpoint = v.GetString("delivery.endpoint")
	}
	if v.IsSet("delivery.timeout") {
		c.Delivery.Timeout = v.GetDuration("delivery.timeout")
	}
	if v.IsSet("archive.dsn") {
		c.Archive.DSN = v.GetString("archive.dsn")
	}
	if v.IsSet("server.host") {
		c.Server.Host = v.GetString("server.host")
	}
	if v.IsSet("server.port") {
		c.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("schedule") {
		c.Schedule = v.GetString("schedule")
	}
}
