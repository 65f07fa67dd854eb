// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (comment.go, settings.go, feed.go, observer.go, errors.go)
// with shared types and cross-cutting interfaces. No stateful implementation code - just contracts
// and value types. Interfaces live here so that the moderation engine, the broadcaster and the
// adapters can depend on each other without circular imports.
package domain
