package config

import (
	"time"

	"github.com/accessgate/accessgate/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode     bool   `mapstructure:"devMode" toml:"devMode"` // enable dev mode for development
	Environment string `mapstructure:"environment" toml:"environment"`
	Title       string `mapstructure:"title" toml:"title"`

	Log       logger.Log `mapstructure:"log" toml:"log"`
	Webserver Webserver  `mapstructure:"webserver" toml:"webserver"`
	Cache     Cache      `mapstructure:"cache" toml:"cache"`
	Grants    Grants     `mapstructure:"grants" toml:"grants"`
	Audit     Audit      `mapstructure:"audit" toml:"audit"`
	Alerts    Alerts     `mapstructure:"alerts" toml:"alerts"`
	Sweep     Sweep      `mapstructure:"sweep" toml:"sweep"`
	Matching  Matching   `mapstructure:"matching" toml:"matching"`

	// Roles replaces the built-in capability table when not empty.
	Roles  map[string][]string `mapstructure:"roles" toml:"roles"`
	WarmUp WarmUp              `mapstructure:"warmUp" toml:"warmUp"`
}

// Webserver implement webserver settings.
type Webserver struct {
	DisableRecover bool   `mapstructure:"disableRecover" toml:"disableRecover"` // disable recover middleware
	Port           int    `mapstructure:"port" toml:"port"`                     // listening port for the webserver
	ShutDownTime   int    `mapstructure:"shutDownTime" toml:"shutDownTime"`     // wait time for shutdown in seconds
	URL            string `mapstructure:"url" toml:"url"`                       // base url for the webserver
	BodyLimit      int    `mapstructure:"bodyLimit" toml:"bodyLimit"`           // max request body in bytes
}

// Cache sizes the two decision cache tiers.
type Cache struct {
	PrimarySize   int           `mapstructure:"primarySize" toml:"primarySize"`
	PrimaryTTL    time.Duration `mapstructure:"primaryTTL" toml:"primaryTTL"`
	SecondarySize int           `mapstructure:"secondarySize" toml:"secondarySize"`
	SecondaryTTL  time.Duration `mapstructure:"secondaryTTL" toml:"secondaryTTL"`
}

// Grants configures the dynamic permission manager.
type Grants struct {
	// Retention is how long revoked and expired grants are kept before purge.
	Retention time.Duration `mapstructure:"retention" toml:"retention"`
}

// Audit configures the audit monitor.
type Audit struct {
	MaxEvents int           `mapstructure:"maxEvents" toml:"maxEvents"`
	Retention time.Duration `mapstructure:"retention" toml:"retention"`

	BusinessHoursStart int    `mapstructure:"businessHoursStart" toml:"businessHoursStart"`
	BusinessHoursEnd   int    `mapstructure:"businessHoursEnd" toml:"businessHoursEnd"`
	TimeZone           string `mapstructure:"timeZone" toml:"timeZone"`

	BurstWindow     time.Duration `mapstructure:"burstWindow" toml:"burstWindow"`
	BurstThreshold  int           `mapstructure:"burstThreshold" toml:"burstThreshold"`
	FanOutWindow    time.Duration `mapstructure:"fanOutWindow" toml:"fanOutWindow"`
	FanOutThreshold int           `mapstructure:"fanOutThreshold" toml:"fanOutThreshold"`

	// AlertThresholds maps a risk level to the event count raising an alert.
	AlertThresholds map[string]int `mapstructure:"alertThresholds" toml:"alertThresholds"`
	AlertWindow     time.Duration  `mapstructure:"alertWindow" toml:"alertWindow"`
	AlertCooldown   time.Duration  `mapstructure:"alertCooldown" toml:"alertCooldown"`
}

// Alerts configures alert delivery.
type Alerts struct {
	QueueSize int `mapstructure:"queueSize" toml:"queueSize"`
	// AMQPURI enables publishing to a RabbitMQ topic exchange when set.
	AMQPURI  string `mapstructure:"amqpURI" toml:"amqpURI"`
	Exchange string `mapstructure:"exchange" toml:"exchange"`
}

// Sweep holds the cron schedules of the maintenance jobs. An empty
// schedule disables the job.
type Sweep struct {
	Cache  string `mapstructure:"cache" toml:"cache"`
	Grants string `mapstructure:"grants" toml:"grants"`
	Audit  string `mapstructure:"audit" toml:"audit"`
}

// Matching selects the permission matcher.
type Matching struct {
	// StrictBareAction stops a held resource:action from satisfying a
	// requested bare action.
	StrictBareAction bool `mapstructure:"strictBareAction" toml:"strictBareAction"`
}

// WarmUpActor is an actor whose decisions are cached at startup.
type WarmUpActor struct {
	ID    string `mapstructure:"id" toml:"id"`
	Role  string `mapstructure:"role" toml:"role"`
	Email string `mapstructure:"email" toml:"email"`
}

// WarmUp lists the decisions computed before traffic arrives.
type WarmUp struct {
	Actors  []WarmUpActor `mapstructure:"actors" toml:"actors"`
	Actions []string      `mapstructure:"actions" toml:"actions"`
}
