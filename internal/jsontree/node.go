package jsontree

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Node is a decoded JSON value.
//
// The concrete type is one of:
//   - *Object for JSON objects (key order preserved)
//   - []Node for JSON arrays
//   - string, json.Number, bool
//   - nil for JSON null
//   - Undefined for a value that is absent altogether
type Node = any

// undefined is the type of the Undefined sentinel.
type undefined struct{}

// Undefined marks a value that does not exist, as opposed to JSON null.
// Field returns it for missing keys.
var Undefined Node = undefined{}

// Kind classifies a Node.
type Kind int

// Node kinds.
const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "undefined"
	}
}

// KindOf reports the kind of n. Go numeric types are reported as KindNumber
// so hand-built trees behave like decoded ones.
func KindOf(n Node) Kind {
	switch n.(type) {
	case nil:
		return KindNull
	case undefined:
		return KindUndefined
	case bool:
		return KindBool
	case json.Number, float64, float32, int, int64, int32, uint, uint64, uint32:
		return KindNumber
	case string:
		return KindString
	case []Node:
		return KindArray
	case *Object:
		return KindObject
	default:
		return KindUndefined
	}
}

// IsContainer reports whether n is an object or an array.
func IsContainer(n Node) bool {
	k := KindOf(n)
	return k == KindObject || k == KindArray
}

// IsScalar reports whether n is a string, number or boolean.
func IsScalar(n Node) bool {
	switch KindOf(n) {
	case KindBool, KindNumber, KindString:
		return true
	default:
		return false
	}
}

// Object is a JSON object that remembers the order its keys were decoded in.
type Object struct {
	keys   []string
	values map[string]Node
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]Node)}
}

// Set stores v under key. A repeated key keeps its original position and
// takes the new value, the same as a JSON parser that lets the last duplicate win.
func (o *Object) Set(key string, v Node) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value for key and whether it exists.
func (o *Object) Get(key string) (Node, bool) {
	if o == nil {
		return Undefined, false
	}
	v, ok := o.values[key]
	if !ok {
		return Undefined, false
	}
	return v, true
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// MarshalJSON encodes the object with its keys in document order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalNode(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNode encodes n, mapping Undefined to null.
func marshalNode(n Node) ([]byte, error) {
	if KindOf(n) == KindUndefined {
		return []byte("null"), nil
	}
	return json.Marshal(n)
}

// Field returns the value of key when n is an object. For anything else,
// and for missing keys, it returns Undefined and false.
func Field(n Node, key string) (Node, bool) {
	obj, ok := n.(*Object)
	if !ok {
		return Undefined, false
	}
	return obj.Get(key)
}

// StringField returns the text of a scalar field. Missing fields, null and
// containers yield "" and false.
func StringField(n Node, key string) (string, bool) {
	v, ok := Field(n, key)
	if !ok || !IsScalar(v) {
		return "", false
	}
	return Text(v), true
}

// Text renders n as plain text: strings verbatim, numbers and booleans in
// their JSON spelling, null as "null", Undefined as "", containers as compact JSON.
func Text(n Node) string {
	switch v := n.(type) {
	case nil:
		return "null"
	case undefined:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []Node, *Object:
		b, err := marshalNode(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}
