package jsontree

import "errors"

// ErrInvalidJSON is returned when a document cannot be parsed.
var ErrInvalidJSON = errors.New("jsontree: invalid JSON")
