package jsontree

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Parse decodes a JSON document into a Node tree with object key order
// preserved and numbers kept as json.Number.
func Parse(data []byte) (Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return FromResult(gjson.ParseBytes(data)), nil
}

// FromResult converts an already parsed gjson value. A result that does not
// exist converts to Undefined.
func FromResult(r gjson.Result) Node {
	switch r.Type {
	case gjson.Null:
		if !r.Exists() {
			return Undefined
		}
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	case gjson.JSON:
		if r.IsArray() {
			arr := make([]Node, 0)
			r.ForEach(func(_, v gjson.Result) bool {
				arr = append(arr, FromResult(v))
				return true
			})
			return arr
		}
		obj := NewObject()
		r.ForEach(func(k, v gjson.Result) bool {
			obj.Set(k.String(), FromResult(v))
			return true
		})
		return obj
	default:
		return Undefined
	}
}
