package statesync

import (
	"strings"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
)

// Write is one pending leaf update.
type Write struct {
	Path  string
	Value any
}

// Queue is the ordered list of pending writes for one cycle.
//
// A Queue is owned by a single cycle and is not safe for concurrent use.
type Queue struct {
	items []Write
	head  int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a write. List and object values are coerced to text first.
func (q *Queue) Push(path string, value any) {
	q.items = append(q.items, Write{Path: path, Value: Coerce(value)})
}

// Pop removes and returns the earliest pending write.
func (q *Queue) Pop() (Write, bool) {
	if q.head >= len(q.items) {
		return Write{}, false
	}
	w := q.items[q.head]
	q.items[q.head] = Write{}
	q.head++
	return w, true
}

// Len returns the number of pending writes.
func (q *Queue) Len() int {
	return len(q.items) - q.head
}

// Pending returns a copy of the pending writes in drain order.
func (q *Queue) Pending() []Write {
	out := make([]Write, q.Len())
	copy(out, q.items[q.head:])
	return out
}

// Reset discards all pending writes.
func (q *Queue) Reset() {
	q.items = nil
	q.head = 0
}

// Coerce converts a value into something storable as a single state value.
//
// Lists become their elements' text joined with ",": nested lists are
// flattened, null elements become empty and object elements are rendered
// inline. A bare object becomes compact JSON text. Scalars are returned
// unchanged.
func Coerce(value any) any {
	switch v := value.(type) {
	case []jsontree.Node:
		return joinList(v)
	case *jsontree.Object:
		return jsontree.Text(v)
	default:
		return value
	}
}

func joinList(list []jsontree.Node) string {
	var sb strings.Builder
	for i, el := range list {
		if i > 0 {
			sb.WriteByte(',')
		}
		switch e := el.(type) {
		case nil:
		case []jsontree.Node:
			sb.WriteString(joinList(e))
		default:
			sb.WriteString(jsontree.Text(e))
		}
	}
	return sb.String()
}
