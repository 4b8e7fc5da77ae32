// Package config handles input from etc/main.toml, the environment and
// the JSON override.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/accessgate/accessgate/internal/audit"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. ACCESSGATE_WEBSERVER_PORT.
	EnvPrefix = "ACCESSGATE"

	// JSONEnv holds a JSON document merged over everything else.
	JSONEnv = EnvPrefix + "_CONFIG_JSON"

	mainFile = "main.toml"
)

// ReadConfig from <dir>/main.toml. Defaults apply to keys the file leaves
// out, ACCESSGATE_* variables override the file and JSONEnv overrides all.
func ReadConfig(dir string) (Config, error) {
	var c Config

	if dir == "" {
		dir = "./etc/"
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(filepath.Join(dir, mainFile))
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	// override it from env
	if raw := os.Getenv(JSONEnv); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Config{}, errors.Wrap(err, "failed to decode "+JSONEnv)
		}
	}

	return c, validate(&c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("title", "accessgate")

	v.SetDefault("log.logLevel", "info")
	v.SetDefault("log.appName", "accessgate")
	v.SetDefault("log.serviceName", "accessgate")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.file.path", "./log")
	v.SetDefault("log.file.access", "access.log")
	v.SetDefault("log.file.error", "error.log")
	v.SetDefault("log.file.info", "info.log")
	v.SetDefault("log.file.trace", "trace.log")
	v.SetDefault("log.file.warn", "warn.log")
	v.SetDefault("log.file.audit", "audit.log")
	v.SetDefault("log.file.rotation.maxSize", 100)
	v.SetDefault("log.file.rotation.maxBackups", 7)
	v.SetDefault("log.file.rotation.maxAge", 30)

	v.SetDefault("webserver.port", 8080)
	v.SetDefault("webserver.shutDownTime", 5)
	v.SetDefault("webserver.bodyLimit", 1<<20)

	v.SetDefault("cache.primarySize", 1000)
	v.SetDefault("cache.primaryTTL", "5m")
	v.SetDefault("cache.secondarySize", 10000)
	v.SetDefault("cache.secondaryTTL", "30m")

	v.SetDefault("grants.retention", "720h")

	v.SetDefault("audit.maxEvents", 10000)
	v.SetDefault("audit.retention", "2160h")
	v.SetDefault("audit.businessHoursStart", 6)
	v.SetDefault("audit.businessHoursEnd", 22)
	v.SetDefault("audit.timeZone", "UTC")
	v.SetDefault("audit.burstWindow", "5m")
	v.SetDefault("audit.burstThreshold", 100)
	v.SetDefault("audit.fanOutWindow", "5m")
	v.SetDefault("audit.fanOutThreshold", 5)
	v.SetDefault("audit.alertThresholds", map[string]int{"critical": 1, "high": 10, "medium": 100, "low": 1000})
	v.SetDefault("audit.alertWindow", "1h")
	v.SetDefault("audit.alertCooldown", "15m")

	v.SetDefault("alerts.queueSize", 64)
	v.SetDefault("alerts.exchange", "accessgate.alerts")

	v.SetDefault("sweep.cache", "@every 1m")
	v.SetDefault("sweep.grants", "@every 1m")
	v.SetDefault("sweep.audit", "@every 1h")
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer

	enc := toml.NewEncoder(&buffer)
	enc.SetIndentTables(true)

	if err := enc.Encode(c); err != nil {
		return "", errors.Wrap(err, "failed to encode config as toml")
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer

	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", errors.Wrap(err, "failed to encode config as json")
	}

	return buffer.String(), nil
}

// Location resolves Audit.TimeZone, falling back to UTC when it is empty.
func (a Audit) Location() (*time.Location, error) {
	if a.TimeZone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(a.TimeZone)

	return loc, errors.Wrapf(err, "unknown audit time zone %q", a.TimeZone)
}

// validate the settings the daemon can't start without and fill in
// the shutdown default.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if c.Cache.PrimarySize <= 0 || c.Cache.SecondarySize <= 0 || c.Cache.PrimaryTTL <= 0 || c.Cache.SecondaryTTL <= 0 {
		return errors.Wrap(ErrInvalidCache, invalidErrMessage)
	}

	if !validHour(c.Audit.BusinessHoursStart) || !validHour(c.Audit.BusinessHoursEnd) {
		return errors.Wrap(ErrInvalidBusinessHours, invalidErrMessage)
	}

	if _, err := c.Audit.Location(); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	for level := range c.Audit.AlertThresholds {
		if _, ok := audit.ParseRiskLevel(level); !ok {
			return errors.Wrapf(ErrUnknownRiskLevel, "%s: %q", invalidErrMessage, level)
		}
	}

	return nil
}

func validHour(h int) bool {
	return h >= 0 && h < 24
}
