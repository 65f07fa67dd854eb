// Package app holds the session manager, which binds the relay to one upstream live
// identity at a time and feeds its chat into the moderation engine.
package app
