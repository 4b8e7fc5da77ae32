package logger

// Console implements a console based logger.
type Console struct {
	Enabled          bool `mapstructure:"enabled" toml:"enabled"`
	UseConsoleWriter bool `mapstructure:"useConsoleWriter" toml:"useConsoleWriter"`
}

// Rotation bounds a rolling log file. Sizes are in megabytes, ages in days.
type Rotation struct {
	MaxSize    int `mapstructure:"maxSize" toml:"maxSize"`
	MaxBackups int `mapstructure:"maxBackups" toml:"maxBackups"`
	MaxAge     int `mapstructure:"maxAge" toml:"maxAge"`
}

// LogFile implements a file based logger. Every level gets its own file in Path.
type LogFile struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Path    string `mapstructure:"path" toml:"path"`

	Access string `mapstructure:"access" toml:"access"`
	Error  string `mapstructure:"error" toml:"error"`
	Info   string `mapstructure:"info" toml:"info"`
	Trace  string `mapstructure:"trace" toml:"trace"`
	Warn   string `mapstructure:"warn" toml:"warn"`
	Audit  string `mapstructure:"audit" toml:"audit"`

	Rotation Rotation `mapstructure:"rotation" toml:"rotation"`
}

// AuditTrail decides where recorded audit events are mirrored as JSON lines.
type AuditTrail struct {
	// Enabled writes audit events to File.Audit when file logging is on.
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	// ToConsole writes audit events to stdout when no audit file is used.
	ToConsole bool `mapstructure:"toConsole" toml:"toConsole"`
}

// Log implements the logger config.
type Log struct {
	LogLevel string `mapstructure:"logLevel" toml:"logLevel"` // trace, debug, info, warn, error.
	LogEnv   string `mapstructure:"logEnv" toml:"logEnv"`

	// EnableAccessLogToConsole writes the HTTP access log to the console.
	// Does not overrule Console.Enabled.
	EnableAccessLogToConsole bool `mapstructure:"enableAccessLogToConsole" toml:"enableAccessLogToConsole"`
	ReportCaller             bool `mapstructure:"reportCaller" toml:"reportCaller"`
	DisableHealthz           bool `mapstructure:"disableHealthz" toml:"disableHealthz"` // do not log /healthz calls

	AppName     string `mapstructure:"appName" toml:"appName"`
	ServiceName string `mapstructure:"serviceName" toml:"serviceName"`

	// Console used mainly for docker and dev.
	Console Console `mapstructure:"console" toml:"console"`

	File LogFile `mapstructure:"file" toml:"file"`

	Audit AuditTrail `mapstructure:"audit" toml:"audit"`
}
