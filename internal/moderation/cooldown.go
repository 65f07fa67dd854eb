package moderation

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// DefaultCooldownTrackerSize bounds the number of authors remembered at once.
const DefaultCooldownTrackerSize = 10000

// CooldownTracker remembers the last admission time per author. The map is bounded by an
// LRU; the least recently admitted author is forgotten first when full.
type CooldownTracker struct {
	entries *lru.Cache[string, time.Time]
	clock   clockwork.Clock
}

// NewCooldownTracker creates a tracker holding at most size authors.
func NewCooldownTracker(size int, clock clockwork.Clock) (*CooldownTracker, error) {
	if size <= 0 {
		size = DefaultCooldownTrackerSize
	}
	entries, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("create cooldown cache: %w", err)
	}
	return &CooldownTracker{entries: entries, clock: clock}, nil
}

// Active reports whether authorID was admitted less than window ago.
func (t *CooldownTracker) Active(authorID string, window time.Duration) bool {
	last, ok := t.entries.Peek(authorID)
	if !ok {
		return false
	}
	return t.clock.Since(last) < window
}

// Record stores now as the author's last admission time.
func (t *CooldownTracker) Record(authorID string) {
	t.entries.Add(authorID, t.clock.Now())
}

// Sweep forgets every author whose window has elapsed and returns how many were removed.
func (t *CooldownTracker) Sweep(window time.Duration) int {
	now := t.clock.Now()
	removed := 0
	for _, id := range t.entries.Keys() {
		last, ok := t.entries.Peek(id)
		if !ok {
			continue
		}
		if now.Sub(last) >= window {
			t.entries.Remove(id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked authors.
func (t *CooldownTracker) Len() int {
	return t.entries.Len()
}
