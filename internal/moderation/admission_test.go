package moderation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

func newTestAdmission(t *testing.T) (*Admission, *CooldownTracker, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cooldowns, err := NewCooldownTracker(100, clock)
	require.NoError(t, err)
	return NewAdmission(NewSanitizer(DefaultBannedPhrases), cooldowns, clock), cooldowns, clock
}

func chat(author, text string) domain.ChatEvent {
	return domain.ChatEvent{AuthorID: author, DisplayName: author, Text: text}
}

func TestAdmission_Gates(t *testing.T) {
	gifters := domain.DefaultSettings()
	gifters.AudienceFilter = domain.AudienceGifters
	followers := domain.DefaultSettings()
	followers.AudienceFilter = domain.AudienceFollowers
	noPrefix := domain.DefaultSettings()
	noPrefix.RequirePeriodPrefix = false

	tests := []struct {
		name     string
		event    domain.ChatEvent
		settings domain.Settings
		queued   int
		wantErr  error
		wantText string
	}{
		{"admitted", chat("a", ".hello world!!"), domain.DefaultSettings(), 0, nil, "hello world"},
		{"empty", chat("a", "   "), domain.DefaultSettings(), 0, domain.ErrEmptyComment, ""},
		{"missing prefix", chat("a", "hello"), domain.DefaultSettings(), 0, domain.ErrMissingPrefix, ""},
		{"prefix after whitespace", chat("a", "  .hello"), domain.DefaultSettings(), 0, nil, "hello"},
		{"prefix not required", chat("a", "hello"), noPrefix, 0, nil, "hello"},
		{"only prefix", chat("a", "."), domain.DefaultSettings(), 0, domain.ErrEmptyAfterSanitize, ""},
		{"not a follower", chat("a", ".hi"), followers, 0, domain.ErrAudienceFiltered, ""},
		{"follower", domain.ChatEvent{AuthorID: "a", Text: ".hi", IsFollower: true}, followers, 0, nil, "hi"},
		{"not a gifter", domain.ChatEvent{AuthorID: "a", Text: ".hi", IsFollower: true}, gifters, 0, domain.ErrAudienceFiltered, ""},
		{"gifter", domain.ChatEvent{AuthorID: "a", Text: ".hi", HasSentGift: true}, gifters, 0, nil, "hi"},
		{"at capacity", chat("a", ".hi"), domain.DefaultSettings(), 5, domain.ErrCapacityExceeded, ""},
		{"below capacity", chat("a", ".hi"), domain.DefaultSettings(), 4, nil, "hi"},
		{"banned only", chat("a", ".gabe itch!"), domain.DefaultSettings(), 0, domain.ErrEmptyAfterSanitize, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admission, cooldowns, _ := newTestAdmission(t)

			c, err := admission.Evaluate(tt.event, tt.settings, tt.queued)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, cooldowns.Len(), "rejection must not start a cooldown")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, c.Text)
			assert.Equal(t, domain.CommentPending, c.State)
			assert.Equal(t, 1, cooldowns.Len())
		})
	}
}

func TestAdmission_PeriodPrefixExample(t *testing.T) {
	admission, _, _ := newTestAdmission(t)

	c, err := admission.Evaluate(chat("viewer", ".hello world!!"), domain.DefaultSettings(), 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", c.Text)
}

func TestAdmission_CommentFields(t *testing.T) {
	admission, _, clock := newTestAdmission(t)
	ev := domain.ChatEvent{AuthorID: "42", DisplayName: "Viewer", Text: ".hi", IsFollower: true, HasSentGift: true}

	c, err := admission.Evaluate(ev, domain.DefaultSettings(), 0)
	require.NoError(t, err)

	id, err := uuid.Parse(c.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "42", c.AuthorID)
	assert.Equal(t, "Viewer", c.DisplayName)
	assert.True(t, c.IsFollower)
	assert.True(t, c.HasSentGift)
	assert.Equal(t, clock.Now(), c.CreatedAt)
}

func TestAdmission_UniqueIDs(t *testing.T) {
	admission, _, _ := newTestAdmission(t)
	settings := domain.DefaultSettings()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		c, err := admission.Evaluate(chat(uuid.NewString(), ".hi"), settings, 0)
		require.NoError(t, err, "event %d", i)
		seen[c.ID] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestAdmission_Cooldown(t *testing.T) {
	admission, _, clock := newTestAdmission(t)
	settings := domain.DefaultSettings()

	_, err := admission.Evaluate(chat("alice", ".first"), settings, 0)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = admission.Evaluate(chat("alice", ".second"), settings, 0)
	require.ErrorIs(t, err, domain.ErrCooldownActive)

	_, err = admission.Evaluate(chat("bob", ".other author"), settings, 0)
	require.NoError(t, err, "cooldown is per author")

	clock.Advance(4 * time.Second)
	_, err = admission.Evaluate(chat("alice", ".third"), settings, 0)
	require.NoError(t, err)
}

func TestAdmission_CapacityDoesNotConsumeCooldown(t *testing.T) {
	admission, cooldowns, _ := newTestAdmission(t)
	settings := domain.DefaultSettings()

	_, err := admission.Evaluate(chat("alice", ".hi"), settings, settings.MaxTotalQueued)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.False(t, cooldowns.Active("alice", time.Minute))

	_, err = admission.Evaluate(chat("alice", ".hi"), settings, 0)
	require.NoError(t, err)
}

func TestAdmission_RejectionKeepsExistingCooldown(t *testing.T) {
	admission, cooldowns, clock := newTestAdmission(t)
	settings := domain.DefaultSettings()

	_, err := admission.Evaluate(chat("alice", ".hi"), settings, 0)
	require.NoError(t, err)

	clock.Advance(3 * time.Second)
	_, err = admission.Evaluate(chat("alice", "no prefix"), settings, 0)
	require.ErrorIs(t, err, domain.ErrMissingPrefix)

	clock.Advance(2 * time.Second)
	assert.False(t, cooldowns.Active("alice", 5*time.Second), "rejected event must not extend the window")
}
