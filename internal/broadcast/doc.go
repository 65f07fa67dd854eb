// Package broadcast implements the observer registry and fan-out using the actor pattern.
//
// Observers connect unclassified and receive nothing until they join as a moderator or a
// streamer. A join delivers that role's snapshot on the actor goroutine, so no event can
// slip between the snapshot and the first delta. Uses single goroutine + command channel
// (no mutexes). Per-connection write goroutines evict slow observers instead of blocking.
package broadcast
