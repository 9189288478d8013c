// Package events provides an in-memory pub/sub broker for manager
// lifecycle notifications: task submitted/dispatched/done/failed,
// worker joined/left/down/blocked, category updated, factory seen.
// Subscribers get a buffered channel; when a subscriber's buffer is
// full, the event is skipped for that subscriber, which stays
// subscribed. The broker never blocks a publisher on a slow reader.
package events
