package unifi

import (
	"context"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
	"github.com/nerrad567/gray-logic-unifi/internal/statesync"
)

// projector turns driver decisions into store objects and queued writes.
//
// Channels and state objects are created immediately; state values are
// queued for the sync engine. The first store error is kept and every later
// call becomes a no-op, so a failing store aborts the cycle before draining.
type projector struct {
	ctx   context.Context
	store objectstore.Store
	queue *statesync.Queue

	channelsCreated int
	statesCreated   int
	err             error
}

func newProjector(ctx context.Context, store objectstore.Store, queue *statesync.Queue) *projector {
	return &projector{ctx: ctx, store: store, queue: queue}
}

// channel ensures a channel exists at path, described by its own path.
func (p *projector) channel(path string) {
	p.describedChannel(path, path)
}

// describedChannel ensures a channel exists at path. An existing object is
// left untouched. An empty desc is stored as given.
func (p *projector) describedChannel(path, desc string) {
	if p.err != nil {
		return
	}
	created, err := p.store.SetObjectNotExists(p.ctx, objectstore.Object{
		ID:     path,
		Type:   objectstore.TypeChannel,
		Common: objectstore.Common{Name: desc},
	})
	if err != nil {
		p.err = err
		return
	}
	if created {
		p.channelsCreated++
	}
}

// state ensures a state object exists at path and queues value unless it
// is undefined.
func (p *projector) state(path string, value jsontree.Node) {
	if p.err != nil {
		return
	}
	created, err := p.store.SetObjectNotExists(p.ctx, objectstore.Object{
		ID:   path,
		Type: objectstore.TypeState,
		Common: objectstore.Common{
			Name:      path,
			ValueType: valueType(value),
			Read:      true,
			Write:     false,
		},
		Native: map[string]string{"id": path},
	})
	if err != nil {
		p.err = err
		return
	}
	if created {
		p.statesCreated++
	}

	if jsontree.KindOf(value) != jsontree.KindUndefined {
		p.queue.Push(path, value)
	}
}

// valueType maps a node to the value type recorded on its state object.
// Lists are stored joined, so they are strings.
func valueType(n jsontree.Node) string {
	switch jsontree.KindOf(n) {
	case jsontree.KindBool:
		return objectstore.ValueTypeBoolean
	case jsontree.KindNumber:
		return objectstore.ValueTypeNumber
	case jsontree.KindString, jsontree.KindArray:
		return objectstore.ValueTypeString
	case jsontree.KindObject:
		return objectstore.ValueTypeObject
	default:
		return objectstore.ValueTypeMixed
	}
}
