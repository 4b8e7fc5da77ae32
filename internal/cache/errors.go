package cache

import "errors"

// ErrInvalidConfig is returned by New when a tier size or TTL is not positive.
var ErrInvalidConfig = errors.New("invalid cache configuration")
