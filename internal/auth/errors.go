package auth

import "errors"

// ErrGrantStoreUnavailable is returned by grant operations when the engine has no grant store.
var ErrGrantStoreUnavailable = errors.New("dynamic grant store is not configured")
