// Package history keeps a bounded recent window of readings per topic.
//
// Each topic gets a fixed-capacity ring buffer, created lazily on first
// append. Eviction is strictly FIFO: once a buffer is full, the oldest
// reading is overwritten. Buffers live until the topic is purged (device
// unregistration) or the process exits; nothing is persisted.
//
// The store is the relay hub's replay source for newly attached viewers.
// The hub is the only writer, but all methods are mutex-guarded so
// concurrent snapshot readers are safe.
package history
