package statesync

import "errors"

// ErrDrainAborted is returned when a drain stops before the queue is empty,
// either because the store failed or the context was cancelled. The queue
// is reset in both cases.
var ErrDrainAborted = errors.New("statesync: drain aborted")
