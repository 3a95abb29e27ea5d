package statesync

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
)

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Change describes one write applied to the store.
type Change struct {
	Path        string    `json:"id"`
	Value       any       `json:"val"`
	Previous    any       `json:"previous,omitempty"`
	HadPrevious bool      `json:"had_previous"`
	Ack         bool      `json:"ack"`
	Timestamp   time.Time `json:"ts"`
}

// Listener is notified after each applied write. A returned error is logged
// and does not stop the drain.
type Listener interface {
	StateChanged(ctx context.Context, change Change) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, change Change) error

// StateChanged calls f.
func (f ListenerFunc) StateChanged(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Result summarises one drain.
type Result struct {
	// Processed is the number of queue entries taken.
	Processed int

	// Written is the number of entries that changed the store.
	Written int

	// Skipped is the number of entries equal to the stored value.
	Skipped int

	// Duration is the wall time of the drain.
	Duration time.Duration
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Store is read and written during the drain. Required.
	Store objectstore.Store

	// Logger receives per-entry debug logs and listener failures. Optional.
	Logger Logger

	// Listeners are notified of every applied write, in order.
	Listeners []Listener
}

// Engine applies queued writes to the store one entry at a time.
//
// Thread Safety: Drain may be called from one goroutine at a time per queue;
// AddListener is safe to call concurrently with Drain.
type Engine struct {
	store  objectstore.Store
	logger Logger

	mu        sync.RWMutex
	listeners []Listener

	// yield runs between entries.
	yield func()
	now   func() time.Time
}

// NewEngine creates an engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("statesync: store is required")
	}
	return &Engine{
		store:     opts.Store,
		logger:    opts.Logger,
		listeners: append([]Listener(nil), opts.Listeners...),
		yield:     runtime.Gosched,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// AddListener registers a listener for subsequent writes.
func (e *Engine) AddListener(l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// Drain applies every entry of q in FIFO order and leaves q empty.
//
// For each entry the stored value is read; if it is absent or differs, the
// pending value is written with ack=true and listeners are notified. If the
// store fails or ctx is cancelled, the remaining entries are discarded and
// the error wraps ErrDrainAborted. The result counts what was done before
// the failure.
func (e *Engine) Drain(ctx context.Context, q *Queue) (Result, error) {
	start := time.Now()
	var res Result

	for {
		if err := ctx.Err(); err != nil {
			q.Reset()
			res.Duration = time.Since(start)
			return res, fmt.Errorf("%w: %w", ErrDrainAborted, err)
		}

		w, ok := q.Pop()
		if !ok {
			break
		}
		res.Processed++

		written, err := e.apply(ctx, w)
		if err != nil {
			q.Reset()
			res.Duration = time.Since(start)
			return res, fmt.Errorf("%w: %w", ErrDrainAborted, err)
		}
		if written {
			res.Written++
		} else {
			res.Skipped++
		}

		e.yield()
	}

	q.Reset()
	res.Duration = time.Since(start)
	return res, nil
}

// apply handles a single queue entry and reports whether it wrote.
func (e *Engine) apply(ctx context.Context, w Write) (bool, error) {
	current, err := e.store.GetState(ctx, w.Path)
	hadPrevious := true
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		hadPrevious = false
	case err != nil:
		return false, fmt.Errorf("reading %s: %w", w.Path, err)
	}

	if hadPrevious && ValuesEqual(current.Value, w.Value) {
		return false, nil
	}

	if err := e.store.SetState(ctx, w.Path, w.Value, true); err != nil {
		return false, fmt.Errorf("writing %s: %w", w.Path, err)
	}

	change := Change{
		Path:        w.Path,
		Value:       w.Value,
		HadPrevious: hadPrevious,
		Ack:         true,
		Timestamp:   e.now(),
	}
	if hadPrevious {
		change.Previous = current.Value
	}
	e.logDebug("state written", "id", w.Path, "value", w.Value)
	e.notify(ctx, change)
	return true, nil
}

func (e *Engine) notify(ctx context.Context, change Change) {
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()

	for _, l := range listeners {
		if err := l.StateChanged(ctx, change); err != nil {
			e.logWarn("state listener failed", "id", change.Path, "error", err)
		}
	}
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, keysAndValues...)
	}
}
