package handler

const (
	// APIPath is the root path of the versioned API.
	APIPath = "/v1"

	// ErrNilACEMsg is returned by Init if app, cfg or engine is nil.
	ErrNilACEMsg = "app, cfg or engine is nil"
)
