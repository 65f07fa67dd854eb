package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateCleanupInterval = 5 * time.Minute
	rateIdleExpiry      = 10 * time.Minute
)

// LimitReason describes why an observer connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits caps observer connections globally, per IP, and by connect rate per IP.
type ConnectionLimits struct {
	clock clockwork.Clock

	current   atomic.Int64
	globalMax int64

	ipMu     sync.Mutex
	ips      map[string]int
	perIPMax int

	rateMu    sync.Mutex
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewConnectionLimits creates a combined connection limiter.
func NewConnectionLimits(globalMax int64, perIPMax int, connectsPerSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		globalMax: globalMax,
		ips:       make(map[string]int),
		perIPMax:  perIPMax,
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(connectsPerSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(rateCleanupInterval),
	}
}

// Acquire reserves a slot for ip. On failure nothing is held and the reason is returned.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	// Rate first, it is the cheapest to refuse.
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}
	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}
	if !l.acquireIP(ip) {
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release frees the slot held for ip.
func (l *ConnectionLimits) Release(ip string) {
	l.ipMu.Lock()
	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
	l.ipMu.Unlock()

	l.current.Add(-1)
}

// Current returns the number of held connection slots.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

// CountIP returns the number of slots held for ip.
func (l *ConnectionLimits) CountIP(ip string) int {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	return l.ips[ip]
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if current >= l.globalMax {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) acquireIP(ip string) bool {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()

	if l.ips[ip] >= l.perIPMax {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-rateIdleExpiry)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.cleanupAt = now.Add(rateCleanupInterval)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// trackedIPs returns the number of IPs with a live rate limiter.
func (l *ConnectionLimits) trackedIPs() int {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()
	return len(l.limiters)
}
