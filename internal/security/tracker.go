package security

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxFailures     = 5
	defaultLockoutDuration = 15 * time.Minute
	defaultRetention       = 24 * time.Hour
	defaultSweepInterval   = time.Hour
)

// attemptRecord tracks failed authentication attempts for one identifier.
// Created lazily on first failure, deleted on success, swept when stale.
type attemptRecord struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

// Tracker is process-wide in-memory lockout state keyed by client identifier
// (email preferred, IP fallback). Single-instance only; a multi-instance
// deployment needs this state in a shared store.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*attemptRecord

	maxFailures   int
	lockout       time.Duration
	retention     time.Duration
	sweepInterval time.Duration
}

func NewTracker(maxFailures int, lockout time.Duration) *Tracker {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if lockout <= 0 {
		lockout = defaultLockoutDuration
	}

	return &Tracker{
		records:       make(map[string]*attemptRecord),
		maxFailures:   maxFailures,
		lockout:       lockout,
		retention:     defaultRetention,
		sweepInterval: defaultSweepInterval,
	}
}

// IsLockedOut reports whether the identifier is currently locked and how long
// the lock has left. A lock whose expiry has passed is reset as a side effect.
func (t *Tracker) IsLockedOut(id string) (bool, time.Duration) {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.lockedUntil.IsZero() {
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}

	// Lock expired: self-heal.
	rec.count = 0
	rec.lockedUntil = time.Time{}
	return false, 0
}

// RecordFailure counts a failed attempt and locks the identifier once the
// failure threshold is reached.
func (t *Tracker) RecordFailure(id string) {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		rec = &attemptRecord{}
		t.records[id] = rec
	}

	rec.count++
	rec.lastAttempt = now
	if rec.count >= t.maxFailures {
		rec.lockedUntil = now.Add(t.lockout)
	}
}

// RecordSuccess clears all state for the identifier.
func (t *Tracker) RecordSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, id)
}

// Sweep drops records with no activity inside the retention window,
// regardless of lock state, to bound memory.
func (t *Tracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.retention)

	t.mu.Lock()
	stale := make([]string, 0)
	for id, rec := range t.records {
		if rec.lastAttempt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(t.records, id)
	}
	t.mu.Unlock()

	return len(stale)
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now.UTC())
		}
	}
}

// ClientIdentifier keys lockout state by email when known, by client IP
// otherwise.
func ClientIdentifier(r *http.Request, email string) string {
	if email != "" {
		return "email:" + email
	}
	return "ip:" + ClientIP(r)
}

// ClientIP resolves the originating client address, honoring the first
// X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
