// Package quota enforces per-client request pacing and a daily request cap.
package quota

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Reason explains why a request was refused.
type Reason string

const (
	ReasonNone  Reason = ""
	ReasonRate  Reason = "rate"
	ReasonDaily Reason = "daily"
)

// Decision is the outcome of one Allow call. Remaining is -1 when there is
// no daily cap.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
	Remaining  int
}

type client struct {
	limiter  *rate.Limiter
	count    int
	lastSeen time.Time
}

// Store keeps counters per client key. When the UTC day changes daily
// counts restart from zero and clients idle for at least one interval are
// forgotten; their limiters are full again, so nothing is lost.
type Store struct {
	mu       sync.Mutex
	interval time.Duration
	daily    int
	now      func() time.Time
	day      string
	clients  map[string]*client
}

// NewStore allows one request per interval and at most daily requests per
// UTC day for each key. Zero disables the respective check.
func NewStore(interval time.Duration, daily int) *Store {
	return &Store{
		interval: interval,
		daily:    daily,
		now:      time.Now,
		clients:  make(map[string]*client),
	}
}

// WithClock replaces the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Allow(key string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if today := now.Format(time.DateOnly); today != s.day {
		s.day = today
		s.rollover(now)
	}

	c, ok := s.clients[key]
	if !ok {
		limit := rate.Inf
		if s.interval > 0 {
			limit = rate.Every(s.interval)
		}
		c = &client{limiter: rate.NewLimiter(limit, 1)}
		s.clients[key] = c
	}

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Reason: ReasonRate, RetryAfter: delay, Remaining: s.remaining(c)}
	}

	c.lastSeen = now

	if s.daily > 0 && c.count >= s.daily {
		return Decision{Reason: ReasonDaily, RetryAfter: untilMidnight(now), Remaining: 0}
	}
	c.count++
	return Decision{Allowed: true, Remaining: s.remaining(c)}
}

func (s *Store) rollover(now time.Time) {
	for key, c := range s.clients {
		if now.Sub(c.lastSeen) >= s.interval {
			delete(s.clients, key)
			continue
		}
		c.count = 0
	}
}

// Len reports how many clients are tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Store) remaining(c *client) int {
	if s.daily <= 0 {
		return -1
	}
	return s.daily - c.count
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC).Sub(now)
}
