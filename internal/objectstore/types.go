package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObjectType distinguishes grouping nodes from leaf values.
type ObjectType string

// Object types.
const (
	TypeChannel ObjectType = "channel"
	TypeState   ObjectType = "state"
)

// Value types recorded in Common.ValueType for states.
const (
	ValueTypeBoolean = "boolean"
	ValueTypeNumber  = "number"
	ValueTypeString  = "string"
	ValueTypeObject  = "object"
	ValueTypeMixed   = "mixed"
)

// Object is a node in the object tree.
type Object struct {
	// ID is the dotted path of the node.
	ID string `json:"id"`

	// Type is channel or state.
	Type ObjectType `json:"type"`

	// Common holds the descriptive metadata.
	Common Common `json:"common"`

	// Native holds protocol-specific attributes (for states: the source path).
	Native map[string]string `json:"native,omitempty"`

	// CreatedAt is when the object was first created (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Common is the descriptive part of an Object.
type Common struct {
	// Name is the human-readable description.
	Name string `json:"name"`

	// ValueType is the kind of value a state holds. Empty for channels.
	ValueType string `json:"type,omitempty"`

	// Read and Write describe access for consumers of the tree.
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

// State is the current value of a leaf.
type State struct {
	ID        string    `json:"id"`
	Value     any       `json:"val"`
	Ack       bool      `json:"ack"`
	UpdatedAt time.Time `json:"ts"`
}

// Store is what the sync engine and projection drivers need.
type Store interface {
	// GetState returns the current value at id, or ErrNotFound if it has
	// never been written.
	GetState(ctx context.Context, id string) (*State, error)

	// SetObjectNotExists creates obj if no object exists at obj.ID.
	// An existing object of any type is left untouched; created reports
	// whether a new object was written.
	SetObjectNotExists(ctx context.Context, obj Object) (created bool, err error)

	// SetState writes the value of a leaf.
	SetState(ctx context.Context, id string, value any, ack bool) error
}

// Browser lists the tree for API consumers.
type Browser interface {
	// GetObject returns the object at id, or ErrNotFound.
	GetObject(ctx context.Context, id string) (*Object, error)

	// ListObjects returns id itself and every descendant of prefix, in
	// creation order. An empty prefix lists everything.
	ListObjects(ctx context.Context, prefix string) ([]Object, error)

	// ListStates returns the states under prefix, ordered by id.
	ListStates(ctx context.Context, prefix string) ([]State, error)
}

// ValidateID checks that id is usable as an object path.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: surrounding whitespace in %q", ErrInvalidID, id)
	}
	return nil
}

// validateObject checks an Object before insertion.
func validateObject(obj Object) error {
	if err := ValidateID(obj.ID); err != nil {
		return err
	}
	if obj.Type != TypeChannel && obj.Type != TypeState {
		return fmt.Errorf("%w: %q", ErrInvalidType, obj.Type)
	}
	return nil
}

// inPrefix reports whether id equals prefix or lies below it.
func inPrefix(id, prefix string) bool {
	if prefix == "" {
		return true
	}
	return id == prefix || strings.HasPrefix(id, prefix+".")
}

// encodeValue serialises a state value for storage.
func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding state value: %w", err)
	}
	return string(b), nil
}

// decodeValue restores a stored state value. Numbers come back as json.Number.
func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding state value: %w", err)
	}
	return v, nil
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
