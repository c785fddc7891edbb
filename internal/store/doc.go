// Package store keeps the latest status of every watched page and
// publishes changes to subscribers.
//
// The main components are:
//
//   - [Store]: interface for storage and subscriptions
//   - [MemoryStore]: in-memory implementation with non-blocking pub/sub
//   - [WatchStatus]: storage representation of a watch
//
// Slow subscribers miss updates rather than block the poll chains.
package store
