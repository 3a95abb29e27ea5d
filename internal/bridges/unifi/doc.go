// Package unifi implements the UniFi Network controller bridge for Gray Logic.
//
// The bridge polls a controller over its JSON API and mirrors what it finds
// into a hierarchical object store: channels for grouping, states for values.
//
// # Architecture
//
//	┌─────────────────┐  HTTPS   ┌─────────────────┐   queue   ┌──────────────┐
//	│ UniFi controller│◄────────►│  UniFi Bridge   │──────────►│ sync engine  │──► store
//	└─────────────────┘          │   (this pkg)    │           └──────────────┘
//	                             └─────────────────┘                  │
//	                                                         listeners (MQTT, history, InfluxDB)
//
// # Poll Cycle
//
// One cycle runs login, site stats, per-site sysinfo, clients and devices,
// then logout. The four document sets are then flattened by depth-windowed
// walks into channels, state objects and queued values. Finally the sync
// engine drains the queue, writing only values that differ from the store.
// The next cycle is scheduled Interval after the drain finishes; cycles
// never overlap.
//
// # State Paths
//
// Paths are dotted and rooted at the site name:
//
//	default.health.wlan.num_ap
//	default.clients.aa:bb:cc:dd:ee:ff.hostname
//	default.devices.f0:9f:c2:00:00:01.radio_table.ng.channel
//
// Health entries are filed by "subsystem", clients and devices by "mac",
// radio and port rows by "name", sysinfo records by "key". A node without
// its identifier is filed under its parent's path.
//
// # Controllers
//
// HTTPClient talks to a live controller. FileController replays JSON
// snapshots from disk, for commissioning and tests.
//
// # Thread Safety
//
// Bridge methods are safe for concurrent use. Projection and draining run on
// one goroutine per cycle.
package unifi
