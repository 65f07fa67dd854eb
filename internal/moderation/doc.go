// Package moderation implements comment admission, the moderation and speech queues,
// the per-author cooldown and the shared streamer settings.
//
// Engine is the only concurrency-safe type. Sanitizer, CooldownTracker, Admission,
// QueueCoordinator and SettingsStore are plain state holders; Engine composes them behind
// one mutex so that every transition (admit, approve, deny, retire, clear, settings update)
// is atomic across both queues, the settings and the cooldown map. Observer notifications
// are issued from inside that critical section through domain.Notifier, which only enqueues.
package moderation
