// Package fiber provides the zerolog based HTTP access log middleware.
package fiber

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/accessgate/accessgate/internal/logger"
)

// headerActorID names the caller in the access log. It matches the header
// read by the authorization middleware.
const headerActorID = "X-Actor-ID"

// Config implements fiber middleware struct.
type Config struct {
	// Next defines a function to skip this middleware when returned true.
	//
	// Optional. Default: nil
	Next func(c fiber.Ctx) bool

	// Config of the logger.
	Config logger.Log

	// ErrorHandler renders errors returned by the handler chain before the
	// request is logged. Optional. Default: fiber.DefaultErrorHandler
	ErrorHandler fiber.ErrorHandler

	// CacheControlError max-age caching on chain errors.
	CacheControlError string

	// HealthzURI is not logged when Config.DisableHealthz is set.
	HealthzURI string
}

// ConfigDefault is the default config for fiber.
var ConfigDefault = Config{
	Next:              nil,
	CacheControlError: "max-age=0",
	HealthzURI:        "/healthz",
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.CacheControlError == "" {
		cfg.CacheControlError = ConfigDefault.CacheControlError
	}

	if cfg.HealthzURI == "" {
		cfg.HealthzURI = ConfigDefault.HealthzURI
	}

	return cfg
}

// New creates a new fiber access logging middleware using zerolog.
func New(config ...Config) fiber.Handler {
	var (
		writers []io.Writer
		cfg     = configDefault(config...)
	)

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = fiber.DefaultErrorHandler
	}

	if cfg.Config.File.Enabled && cfg.Config.File.Access != "" {
		if w := logger.NewRollingFile(cfg.Config.File, cfg.Config.File.Access); w != nil {
			writers = append(writers, w)
		}
	}

	// console access logging needs both the console and the access flag
	if cfg.Config.Console.Enabled && cfg.Config.EnableAccessLogToConsole {
		if cfg.Config.Console.UseConsoleWriter {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:          os.Stdout,
				TimeFormat:   zerolog.TimeFieldFormat,
				PartsExclude: []string{"level"},
			})
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	accessLogger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger().
		Level(zerolog.NoLevel)

	return func(c fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		start := time.Now()

		chainErr := c.Next()
		if chainErr != nil {
			if errH := cfg.ErrorHandler(c, chainErr); errH != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
				// ensure also 500 has a Cache-Control
				c.Response().Header.Set(fiber.HeaderCacheControl, cfg.CacheControlError)
			}
		} else if cfg.Config.DisableHealthz && c.Path() == cfg.HealthzURI {
			return nil
		}

		logAccess(accessLogger, c, start, chainErr)

		return nil
	}
}

func logAccess(l zerolog.Logger, c fiber.Ctx, start time.Time, chainErr error) {
	elapsed := time.Since(start).Seconds()

	c.Response().Header.Set("X-Performance", fmt.Sprintf("%f", elapsed))

	// log the URI as requested, not as normalised by fasthttp
	uri := string(c.Request().RequestURI())

	entry := l.Log().Str("IP", c.IP()).
		Int("status", c.Response().StatusCode()).
		Float64("X-Performance", elapsed).
		Str("URI", uri).
		Str("method", c.Method()).
		Str("host", string(c.Request().Host())).
		Str(fiber.HeaderXRequestID, c.Get(fiber.HeaderXRequestID)).
		Str(headerActorID, c.Get(headerActorID)).
		Str(fiber.HeaderXForwardedFor, c.Get(fiber.HeaderXForwardedFor)).
		Str(fiber.HeaderUserAgent, c.Get(fiber.HeaderUserAgent))

	if chainErr != nil {
		entry = entry.Err(chainErr)
	}

	entry.Send()
}
