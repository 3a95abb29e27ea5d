package objectstore

import "errors"

// Domain errors for the object store.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, objectstore.ErrNotFound) {
//	    // never written
//	}
var (
	// ErrNotFound is returned when an object or state does not exist.
	ErrNotFound = errors.New("objectstore: not found")

	// ErrInvalidID is returned for an empty or malformed object ID.
	ErrInvalidID = errors.New("objectstore: invalid id")

	// ErrInvalidType is returned when an object type is not channel or state.
	ErrInvalidType = errors.New("objectstore: invalid object type")
)
