// Package metrics exposes the bridge's Prometheus metrics.
//
// Exported series (namespace unifibridge):
//
//	cycles_total{result}          success, login_failed, fetch_failed, store_failed
//	cycle_duration_seconds        histogram of whole poll cycles
//	state_writes_total{outcome}   written, skipped
//	channels_created_total
//	queue_length                  updates queued by the last cycle
//
// Go runtime and process metrics are included. The API server mounts
// Handler at /metrics.
package metrics
