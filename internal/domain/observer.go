package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Role classifies an observer connection.
type Role string

const (
	RoleModerator Role = "moderator"
	RoleStreamer  Role = "streamer"
)

// ParseRole converts a declared role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleModerator, RoleStreamer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// ObserverCounts is a diagnostic view of the registry.
type ObserverCounts struct {
	Moderators   int `json:"moderators"`
	Streamers    int `json:"streamers"`
	Unclassified int `json:"unclassified"`
}

// Notifier fans state transitions out to observers. Calls must not block on network I/O
// and must not call back into the moderation engine; the engine invokes them while
// holding its lock so delivery order equals transition order.
type Notifier interface {
	ModeratorJoined(observerID uuid.UUID, queue []Comment)
	StreamerJoined(observerID uuid.UUID, settings Settings, pendingModeration int)
	CommentPending(c Comment, pendingModeration int)
	CommentResolved(c Comment, pendingModeration int)
	CommentQueued(c Comment)
	ModerationReset(queue []Comment)
	SettingsChanged(settings Settings)
}
