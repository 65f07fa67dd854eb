package domain

import "fmt"

// AudienceFilter controls which authors may have comments admitted.
type AudienceFilter string

const (
	AudienceEverybody AudienceFilter = "everybody"
	AudienceFollowers AudienceFilter = "followers"
	AudienceGifters   AudienceFilter = "gifters"
)

// ParseAudienceFilter converts a string to an AudienceFilter.
func ParseAudienceFilter(s string) (AudienceFilter, error) {
	switch AudienceFilter(s) {
	case AudienceEverybody, AudienceFollowers, AudienceGifters:
		return AudienceFilter(s), nil
	default:
		return "", fmt.Errorf("%w: audience filter must be one of everybody, followers, gifters (got %q)", ErrInvalidSetting, s)
	}
}

// Allows reports whether an author with the given flags passes the filter.
func (f AudienceFilter) Allows(isFollower, hasSentGift bool) bool {
	switch f {
	case AudienceFollowers:
		return isFollower
	case AudienceGifters:
		return hasSentGift
	default:
		return true
	}
}

// MaxCooldownSeconds bounds CooldownSeconds so the window fits in a time.Duration.
const MaxCooldownSeconds = 86400

// Settings is the streamer-controlled configuration shared by all observers.
type Settings struct {
	AudienceFilter      AudienceFilter `json:"audienceFilter"`
	ManualModeration    bool           `json:"manualModeration"`
	RequirePeriodPrefix bool           `json:"requirePeriodPrefix"`
	CooldownSeconds     int            `json:"cooldownSeconds"`
	MaxTotalQueued      int            `json:"maxTotalQueued"`
}

// DefaultSettings matches the dashboard defaults.
func DefaultSettings() Settings {
	return Settings{
		AudienceFilter:      AudienceEverybody,
		ManualModeration:    true,
		RequirePeriodPrefix: true,
		CooldownSeconds:     5,
		MaxTotalQueued:      5,
	}
}

// Validate checks every field range. Errors wrap ErrInvalidSetting.
func (s Settings) Validate() error {
	if _, err := ParseAudienceFilter(string(s.AudienceFilter)); err != nil {
		return err
	}
	if s.CooldownSeconds < 1 {
		return fmt.Errorf("%w: cooldownSeconds must be at least 1 (got %d)", ErrInvalidSetting, s.CooldownSeconds)
	}
	if s.CooldownSeconds > MaxCooldownSeconds {
		return fmt.Errorf("%w: cooldownSeconds must be at most %d (got %d)", ErrInvalidSetting, MaxCooldownSeconds, s.CooldownSeconds)
	}
	if s.MaxTotalQueued < 1 {
		return fmt.Errorf("%w: maxTotalQueued must be at least 1 (got %d)", ErrInvalidSetting, s.MaxTotalQueued)
	}
	return nil
}

// SettingsUpdate is a partial Settings. Nil fields are left unchanged.
type SettingsUpdate struct {
	AudienceFilter      *AudienceFilter `json:"audienceFilter,omitempty"`
	ManualModeration    *bool           `json:"manualModeration,omitempty"`
	RequirePeriodPrefix *bool           `json:"requirePeriodPrefix,omitempty"`
	CooldownSeconds     *int            `json:"cooldownSeconds,omitempty"`
	MaxTotalQueued      *int            `json:"maxTotalQueued,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u SettingsUpdate) IsEmpty() bool {
	return u.AudienceFilter == nil && u.ManualModeration == nil && u.RequirePeriodPrefix == nil &&
		u.CooldownSeconds == nil && u.MaxTotalQueued == nil
}

// Merge returns a copy of s with the provided fields of u applied. It does not validate.
func (s Settings) Merge(u SettingsUpdate) Settings {
	if u.AudienceFilter != nil {
		s.AudienceFilter = *u.AudienceFilter
	}
	if u.ManualModeration != nil {
		s.ManualModeration = *u.ManualModeration
	}
	if u.RequirePeriodPrefix != nil {
		s.RequirePeriodPrefix = *u.RequirePeriodPrefix
	}
	if u.CooldownSeconds != nil {
		s.CooldownSeconds = *u.CooldownSeconds
	}
	if u.MaxTotalQueued != nil {
		s.MaxTotalQueued = *u.MaxTotalQueued
	}
	return s
}
