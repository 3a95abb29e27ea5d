// Package statesync holds the per-cycle update queue and the engine that
// applies it to the object store.
//
// A poll cycle pushes leaf writes onto a Queue in traversal order. The Engine
// then drains that queue front to back: for each entry it reads the stored
// value, writes the new value with ack=true only if it differs, and notifies
// listeners of every applied write. Equal values produce no write.
//
// Values are compared on canonical text, so 5, "5" and 5.0 are the same value.
// Lists are joined into a single comma-separated string when pushed; objects
// are stored as compact JSON text.
//
// The engine yields to the scheduler between entries and checks its context,
// so a queue of many thousands of writes neither monopolises a thread nor
// grows the call stack.
package statesync
