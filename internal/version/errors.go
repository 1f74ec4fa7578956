package version

import "errors"

// ErrNotFound is returned by Get for an unknown version id.
var ErrNotFound = errors.New("version: not found")
