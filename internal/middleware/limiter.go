package middleware

import (
	"context"
	"sync"
	"time"
)

const limiterSweepInterval = 5 * time.Minute

// MemoryLimiter is a fixed-window counter kept in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-l.done:
				return
			}
		}
	}()

	return l
}

func (l *MemoryLimiter) CheckRateLimit(_ context.Context, identifier string, limit int, period time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		l.windows[identifier] = w
	}

	w.count++
	return w.count <= limit, nil
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
