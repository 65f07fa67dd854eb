package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// Engine serializes every comment and settings transition behind one mutex.
type Engine struct {
	mu        sync.Mutex
	settings  *SettingsStore
	queues    *QueueCoordinator
	cooldowns *CooldownTracker
	admission *Admission
	notifier  domain.Notifier
	clock     clockwork.Clock
	metrics   *metrics.ModerationMetrics
}

// NewEngine validates the initial settings and wires the engine. notifier and m may be nil.
func NewEngine(initial domain.Settings, sanitizer *Sanitizer, cooldowns *CooldownTracker, notifier domain.Notifier, clock clockwork.Clock, m *metrics.ModerationMetrics) (*Engine, error) {
	settings, err := NewSettingsStore(initial)
	if err != nil {
		return nil, fmt.Errorf("initial settings: %w", err)
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	e := &Engine{
		settings:  settings,
		queues:    NewQueueCoordinator(),
		cooldowns: cooldowns,
		admission: NewAdmission(sanitizer, cooldowns, clock),
		notifier:  notifier,
		clock:     clock,
		metrics:   m,
	}
	m.ObserveQueues(0, 0)
	return e, nil
}

// Admit evaluates a chat event and, on success, places the new comment in the moderation
// queue or, with manual moderation off, directly in the speech queue.
func (e *Engine) Admit(ctx context.Context, ev domain.ChatEvent) (domain.Comment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings := e.settings.Current()
	c, err := e.admission.Evaluate(ev, settings, e.queues.Len())
	e.metrics.ObserveAdmission(domain.RejectReason(err))
	if err != nil {
		slog.DebugContext(ctx, "Comment rejected", "author_id", ev.AuthorID, "reason", domain.RejectReason(err))
		return domain.Comment{}, err
	}

	c = e.queues.Admit(c, settings.ManualModeration)
	if c.State == domain.CommentPending {
		e.notifier.CommentPending(c, e.queues.ModerationLen())
	} else {
		e.notifier.CommentQueued(c)
	}
	e.afterTransition(c.State)

	slog.DebugContext(ctx, "Comment admitted", "comment_id", c.ID, "author_id", c.AuthorID, "state", c.State)
	return c, nil
}

// Approve moves a comment from moderation to speech. queued is false when the comment was
// approved but the speech queue had no residual capacity; it is then discarded.
func (e *Engine) Approve(ctx context.Context, id string) (c domain.Comment, queued bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, queued, err = e.queues.Approve(id, e.settings.Current().MaxTotalQueued)
	if err != nil {
		return domain.Comment{}, false, fmt.Errorf("approve %q: %w", id, err)
	}

	e.notifier.CommentResolved(c, e.queues.ModerationLen())
	if queued {
		e.notifier.CommentQueued(c)
	}
	e.afterTransition(c.State)

	slog.InfoContext(ctx, "Comment approved", "comment_id", c.ID, "queued", queued)
	return c, queued, nil
}

// Deny removes a comment from moderation and discards it.
func (e *Engine) Deny(ctx context.Context, id string) (domain.Comment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.queues.Deny(id)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("deny %q: %w", id, err)
	}

	e.notifier.CommentResolved(c, e.queues.ModerationLen())
	e.afterTransition(c.State)

	slog.InfoContext(ctx, "Comment denied", "comment_id", c.ID)
	return c, nil
}

// RetireFromSpeech removes a spoken (or failed) comment from the speech queue. Unknown ids
// are ignored and reported as false.
func (e *Engine) RetireFromSpeech(ctx context.Context, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.queues.RetireFromSpeech(id)
	if !ok {
		return false
	}
	e.afterTransition(c.State)

	slog.DebugContext(ctx, "Comment retired", "comment_id", c.ID)
	return true
}

// ClearSpeechQueue retires every queued comment and returns how many were removed.
func (e *Engine) ClearSpeechQueue(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cleared := e.queues.ClearSpeech()
	for range cleared {
		e.afterTransition(domain.CommentRetired)
	}
	if len(cleared) == 0 {
		e.metrics.ObserveQueues(e.queues.ModerationLen(), e.queues.SpeechLen())
	}

	slog.InfoContext(ctx, "Speech queue cleared", "count", len(cleared))
	return len(cleared)
}

// UpdateSettings applies a partial update. On failure nothing changes. Turning manual
// moderation off discards the moderation queue; lowering the capacity below the current
// total evicts the newest comments, moderation queue first.
func (e *Engine) UpdateSettings(ctx context.Context, u domain.SettingsUpdate) (domain.Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous, next, err := e.settings.Update(u)
	if err != nil {
		return previous, fmt.Errorf("update settings: %w", err)
	}

	moderationChanged := false
	if previous.ManualModeration && !next.ManualModeration {
		discarded := e.queues.ClearModeration()
		moderationChanged = len(discarded) > 0
		for range discarded {
			e.afterTransition(domain.CommentDenied)
		}
		if len(discarded) > 0 {
			slog.InfoContext(ctx, "Manual moderation disabled, moderation queue discarded", "count", len(discarded))
		}
	}

	evictedModeration, evictedSpeech := e.queues.Shrink(next.MaxTotalQueued)
	if len(evictedModeration) > 0 {
		moderationChanged = true
	}
	for _, c := range evictedModeration {
		e.afterTransition(c.State)
	}
	for _, c := range evictedSpeech {
		e.afterTransition(c.State)
	}
	if len(evictedModeration)+len(evictedSpeech) > 0 {
		slog.InfoContext(ctx, "Capacity lowered, comments evicted",
			"moderation", len(evictedModeration),
			"speech", len(evictedSpeech),
			"max_total_queued", next.MaxTotalQueued,
		)
	}

	e.notifier.SettingsChanged(next)
	if moderationChanged {
		e.notifier.ModerationReset(e.queues.PendingModeration())
	}
	e.metrics.ObserveQueues(e.queues.ModerationLen(), e.queues.SpeechLen())

	slog.InfoContext(ctx, "Settings updated",
		"audience_filter", next.AudienceFilter,
		"manual_moderation", next.ManualModeration,
		"require_period_prefix", next.RequirePeriodPrefix,
		"cooldown_seconds", next.CooldownSeconds,
		"max_total_queued", next.MaxTotalQueued,
	)
	return next, nil
}

// AttachObserver sends the late-join snapshot for role to observerID. Running under the
// engine lock guarantees the snapshot is followed by exactly the deltas that come after it.
func (e *Engine) AttachObserver(ctx context.Context, observerID uuid.UUID, role domain.Role) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch role {
	case domain.RoleModerator:
		e.notifier.ModeratorJoined(observerID, e.queues.PendingModeration())
	case domain.RoleStreamer:
		e.notifier.StreamerJoined(observerID, e.settings.Current(), e.queues.ModerationLen())
	default:
		slog.WarnContext(ctx, "Attach with unknown role ignored", "observer_id", observerID, "role", role)
	}
}

// Settings returns the current settings.
func (e *Engine) Settings() domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Current()
}

// Snapshot returns copies of both queues and the settings.
func (e *Engine) Snapshot() domain.QueueSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.QueueSnapshot{
		PendingModeration: e.queues.PendingModeration(),
		PendingSpeech:     e.queues.PendingSpeech(),
		Settings:          e.settings.Current(),
	}
}

// SpeechQueue returns a copy of the speech queue.
func (e *Engine) SpeechQueue() []domain.Comment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues.PendingSpeech()
}

// SweepCooldowns forgets authors whose cooldown window has elapsed.
func (e *Engine) SweepCooldowns() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	swept := e.cooldowns.Sweep(e.settings.CooldownWindow())
	e.metrics.ObserveCooldowns(e.cooldowns.Len(), swept)
	return swept
}

// StartCooldownSweeper runs SweepCooldowns every interval until the returned stop
// function is called.
func (e *Engine) StartCooldownSweeper(interval time.Duration) func() {
	ticker := e.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if swept := e.SweepCooldowns(); swept > 0 {
					slog.Debug("Swept expired cooldowns", "count", swept)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (e *Engine) afterTransition(state domain.CommentState) {
	e.metrics.ObserveTransition(string(state))
	e.metrics.ObserveQueues(e.queues.ModerationLen(), e.queues.SpeechLen())
}

type noopNotifier struct{}

func (noopNotifier) ModeratorJoined(uuid.UUID, []domain.Comment) {}
func (noopNotifier) StreamerJoined(uuid.UUID, domain.Settings, int) {}
func (noopNotifier) CommentPending(domain.Comment, int) {}
func (noopNotifier) CommentResolved(domain.Comment, int) {}
func (noopNotifier) CommentQueued(domain.Comment) {}
func (noopNotifier) ModerationReset([]domain.Comment) {}
func (noopNotifier) SettingsChanged(domain.Settings) {}
