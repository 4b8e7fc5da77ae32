package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("config webserver.port listening port can not be 0")

	// ErrInvalidCache error if a cache tier has no capacity or no ttl.
	ErrInvalidCache = errors.New("config cache sizes and ttls must be positive")

	// ErrInvalidBusinessHours error if the audit business hours are outside [0,24).
	ErrInvalidBusinessHours = errors.New("config audit business hours must be within 0 and 23")

	// ErrUnknownRiskLevel error if an alert threshold names an unknown risk level.
	ErrUnknownRiskLevel = errors.New("config audit alert threshold names an unknown risk level")
)
