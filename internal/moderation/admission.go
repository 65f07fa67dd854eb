package moderation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

const periodPrefix = "."

// Admission decides whether a chat event becomes a Comment. It is not safe for concurrent
// use; Engine serializes calls.
type Admission struct {
	sanitizer *Sanitizer
	cooldowns *CooldownTracker
	clock     clockwork.Clock
}

func NewAdmission(sanitizer *Sanitizer, cooldowns *CooldownTracker, clock clockwork.Clock) *Admission {
	return &Admission{sanitizer: sanitizer, cooldowns: cooldowns, clock: clock}
}

// Evaluate runs the gates in order and returns a pending Comment on success. queued is the
// current combined length of both queues. A rejection leaves the cooldown tracker untouched.
func (a *Admission) Evaluate(ev domain.ChatEvent, settings domain.Settings, queued int) (domain.Comment, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return domain.Comment{}, domain.ErrEmptyComment
	}

	if settings.RequirePeriodPrefix {
		if !strings.HasPrefix(text, periodPrefix) {
			return domain.Comment{}, domain.ErrMissingPrefix
		}
		text = strings.TrimPrefix(text, periodPrefix)
	}

	if !settings.AudienceFilter.Allows(ev.IsFollower, ev.HasSentGift) {
		return domain.Comment{}, domain.ErrAudienceFiltered
	}

	if queued >= settings.MaxTotalQueued {
		return domain.Comment{}, domain.ErrCapacityExceeded
	}

	window := time.Duration(settings.CooldownSeconds) * time.Second
	if a.cooldowns.Active(ev.AuthorID, window) {
		return domain.Comment{}, domain.ErrCooldownActive
	}

	text = a.sanitizer.Sanitize(text)
	if text == "" {
		return domain.Comment{}, domain.ErrEmptyAfterSanitize
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Comment{}, fmt.Errorf("generate comment id: %w", err)
	}

	a.cooldowns.Record(ev.AuthorID)

	return domain.Comment{
		ID:          id.String(),
		Text:        text,
		AuthorID:    ev.AuthorID,
		DisplayName: ev.DisplayName,
		IsFollower:  ev.IsFollower,
		HasSentGift: ev.HasSentGift,
		State:       domain.CommentPending,
		CreatedAt:   a.clock.Now(),
	}, nil
}
