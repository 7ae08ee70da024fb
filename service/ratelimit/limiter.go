// Package ratelimit guards the polling endpoint with a fixed-window request
// counter per review case. Counters live only as long as their case is
// active; the lifecycle engine releases them on terminal transitions.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rotorstar/hitl-protocol/internal/clock"
)

// Config controls the window arithmetic.
type Config struct {
	Limit  int           `json:"limit" yaml:"limit" env:"LIMIT"`
	Window time.Duration `json:"window" yaml:"window" env:"WINDOW"`
}

// DefaultConfig returns the protocol defaults: 60 requests per 60 seconds.
func DefaultConfig() Config {
	return Config{Limit: 60, Window: time.Minute}
}

// Verdict is the outcome of a single counted request.
type Verdict struct {
	Allowed   bool
	Limit     int
	Remaining int
}

type window struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// Limiter counts requests per case id over fixed windows. Counter mutation is
// serialized per case; unrelated cases never contend.
type Limiter struct {
	config  Config
	mu      sync.RWMutex
	windows map[string]*window
}

// New creates a limiter with the supplied configuration; zero values fall
// back to defaults.
func New(config Config) *Limiter {
	if config.Limit <= 0 {
		config.Limit = DefaultConfig().Limit
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	return &Limiter{config: config, windows: make(map[string]*window)}
}

// Check counts one request against the case's current window, starting a
// fresh window when none exists or the previous one elapsed.
func (l *Limiter) Check(caseID string) Verdict {
	w := l.window(caseID)
	now := clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resetAt.IsZero() || now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(l.config.Window)
	}
	w.count++
	remaining := l.config.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Verdict{
		Allowed:   w.count <= l.config.Limit,
		Limit:     l.config.Limit,
		Remaining: remaining,
	}
}

// Release discards the case's counter, bounding memory to active cases.
func (l *Limiter) Release(caseID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, caseID)
}

// Len returns the number of tracked cases.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

func (l *Limiter) window(caseID string) *window {
	l.mu.RLock()
	w, ok := l.windows[caseID]
	l.mu.RUnlock()
	if ok {
		return w
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[caseID]; ok {
		return w
	}
	w = &window{}
	l.windows[caseID] = w
	return w
}
