// Package broadcast fans chat events out to connected clients.
//
// A Hub accepts events with Publish and delivers them to every active
// subscriber. MemoryHub serves a single process; RedisHub relays through a
// Redis pub/sub channel so several chatrelay instances share one stream.
//
// Delivery is best effort. A subscriber whose buffer is full misses events
// rather than slowing the publisher down.
package broadcast
