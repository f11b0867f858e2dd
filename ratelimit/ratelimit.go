package ratelimit

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrClosed is returned by Close on a closed limiter.
var ErrClosed = errors.New("limiter closed")

// Config configures a Limiter.
type Config struct {
	// Capacity is the number of requests a client may burst. Zero or less
	// disables limiting.
	Capacity int

	// Window is the time an empty bucket takes to refill. Default: 1m
	Window time.Duration

	// IdleTTL drops buckets unused for this long. Default: 10m
	IdleTTL time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity: 60,
		Window:   time.Minute,
		IdleTTL:  10 * time.Minute,
	}
}

// Capacity describes one client's bucket.
type Capacity struct {
	// Client is the bucket key.
	Client string

	// Available is the current number of tokens.
	Available int

	// Total is the bucket size.
	Total int

	// Window is the refill period.
	Window time.Duration
}

// bucket pairs a client's token bucket with its last use.
type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one bucket per client. It is safe for concurrent use.
type Limiter struct {
	config Config

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	closed    bool
	nowFunc   func() time.Time
}

// New creates a limiter.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &Limiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.Capacity > 0
}

// Allow takes a token for client. A client seen for the first time starts
// with a full bucket. A disabled limiter allows everything; a closed one
// allows nothing.
func (l *Limiter) Allow(client string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	now := l.nowFunc()
	l.sweep(now)

	b := l.bucket(client)
	b.lastSeen = now
	return b.tokens.AllowN(now, 1)
}

// RetryAfter returns how long client must wait for its next token. Zero
// means a token is available now.
func (l *Limiter) RetryAfter(client string) time.Duration {
	if !l.Enabled() {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		return 0
	}
	missing := 1 - b.tokens.TokensAt(l.nowFunc())
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(l.perToken())).Round(time.Millisecond)
}

// GetCapacity returns client's bucket, or nil if the client has none.
func (l *Limiter) GetCapacity(client string) *Capacity {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		return nil
	}
	return &Capacity{
		Client:    client,
		Available: int(b.tokens.TokensAt(l.nowFunc())),
		Total:     l.config.Capacity,
		Window:    l.config.Window,
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close drops every bucket. Allow rejects everything afterwards.
func (l *Limiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.closed = true
	l.buckets = nil
	return nil
}

// bucket returns client's bucket, creating a full one. Callers hold mu.
func (l *Limiter) bucket(client string) *bucket {
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rate.Every(l.perToken()), l.config.Capacity)}
		l.buckets[client] = b
	}
	return b
}

// perToken is the time one token takes to refill.
func (l *Limiter) perToken() time.Duration {
	return l.config.Window / time.Duration(l.config.Capacity)
}

// sweep drops idle buckets at most once per IdleTTL. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.IdleTTL {
		return
	}
	l.lastSweep = now
	for client, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.config.IdleTTL {
			delete(l.buckets, client)
		}
	}
}
