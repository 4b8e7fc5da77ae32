package audit

import "errors"

// ErrUnsupportedFormat is returned by Export and ParseFormat for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")
