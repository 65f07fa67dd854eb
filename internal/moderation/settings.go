package moderation

import (
	"time"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// SettingsStore holds the current streamer settings. It is not safe for concurrent use;
// Engine serializes calls.
type SettingsStore struct {
	current domain.Settings
}

// NewSettingsStore validates the initial settings.
func NewSettingsStore(initial domain.Settings) (*SettingsStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{current: initial}, nil
}

// Current returns a copy of the settings.
func (s *SettingsStore) Current() domain.Settings {
	return s.current
}

// CooldownWindow is the current cooldown as a duration.
func (s *SettingsStore) CooldownWindow() time.Duration {
	return time.Duration(s.current.CooldownSeconds) * time.Second
}

// Update merges u into the current settings. Either every field is applied or none is.
// It returns the previous and the new settings.
func (s *SettingsStore) Update(u domain.SettingsUpdate) (previous, next domain.Settings, err error) {
	previous = s.current
	next = previous.Merge(u)
	if err := next.Validate(); err != nil {
		return previous, previous, err
	}
	s.current = next
	return previous, next, nil
}
