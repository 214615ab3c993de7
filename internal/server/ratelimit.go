package server

import (
	"math"
	"sync"
	"time"
)

// Login throttling parameters.
const (
	LoginFailureThreshold = 5
	LoginFailureWindow    = 300 * time.Second
	LoginLockout          = 900 * time.Second
)

type loginAttempts struct {
	failures    int
	inflight    int
	windowStart time.Time
	lockedUntil time.Time
}

// RateLimiter counts failed logins per source IP in a sliding window and
// locks the IP out once the threshold is reached. Attempts are admitted
// with Acquire, which reserves a slot, so concurrent guesses from one IP
// can never exceed the threshold before the failures are counted.
type RateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*loginAttempts
	threshold int
	window    time.Duration
	lockout   time.Duration
	now       func() time.Time
}

// NewRateLimiter creates a limiter with the default login parameters.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		entries:   make(map[string]*loginAttempts),
		threshold: LoginFailureThreshold,
		window:    LoginFailureWindow,
		lockout:   LoginLockout,
		now:       now,
	}
}

// entry returns the record for ip after expiring a finished lockout or a
// stale window. Callers hold l.mu.
func (l *RateLimiter) entry(ip string, now time.Time) *loginAttempts {
	e, found := l.entries[ip]
	if !found {
		e = &loginAttempts{windowStart: now}
		l.entries[ip] = e
		return e
	}
	if !e.lockedUntil.IsZero() && !now.Before(e.lockedUntil) {
		e.lockedUntil = time.Time{}
		e.failures = 0
		e.windowStart = now
	}
	if e.lockedUntil.IsZero() && now.Sub(e.windowStart) > l.window {
		e.failures = 0
		e.windowStart = now
	}
	return e
}

// Acquire admits one login attempt from ip and reserves a slot for it.
// It refuses while ip is locked out, or while the failures already counted
// plus the attempts still in flight reach the threshold. Every admitted
// attempt must end with RecordFailure, Reset or Release.
func (l *RateLimiter) Acquire(ip string) (retryAfter int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entry(ip, now)
	if !e.lockedUntil.IsZero() {
		return ceilSeconds(e.lockedUntil.Sub(now)), false
	}
	if e.failures+e.inflight >= l.threshold {
		// the pending attempts decide whether a lockout follows
		return 1, false
	}
	e.inflight++
	return 0, true
}

// RecordFailure counts one failed login and frees its slot. It reports
// whether this failure put ip into lockout, and for how many seconds.
func (l *RateLimiter) RecordFailure(ip string) (retryAfter int, locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entry(ip, now)
	if e.inflight > 0 {
		e.inflight--
	}
	if !e.lockedUntil.IsZero() {
		return ceilSeconds(e.lockedUntil.Sub(now)), true
	}
	e.failures++

	if e.failures >= l.threshold {
		e.lockedUntil = now.Add(l.lockout)
		return ceilSeconds(l.lockout), true
	}
	return 0, false
}

// Reset forgets every failure recorded for ip and frees the caller's slot.
// It is called after a successful login.
func (l *RateLimiter) Reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, found := l.entries[ip]
	if !found {
		return
	}
	if e.inflight > 0 {
		e.inflight--
	}
	e.failures = 0
	e.lockedUntil = time.Time{}
	if e.inflight == 0 {
		delete(l.entries, ip)
	}
}

// Release frees a slot without counting the attempt, for requests that
// never reached the password check.
func (l *RateLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, found := l.entries[ip]
	if !found {
		return
	}
	if e.inflight > 0 {
		e.inflight--
	}
	if e.inflight == 0 && e.failures == 0 && e.lockedUntil.IsZero() {
		delete(l.entries, ip)
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
