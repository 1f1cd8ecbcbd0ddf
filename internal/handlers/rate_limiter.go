package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/ukisoft/ownplate/internal/platform/auth"
	"github.com/ukisoft/ownplate/internal/platform/httpx"
)

// callerLimiter is a fixed-window counter keyed by caller uid.
type callerLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

func newCallerLimiter(limit int, window time.Duration, clock func() time.Time) *callerLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &callerLimiter{limit: limit, window: window, clock: clock, windows: make(map[string]rateWindow)}
}

func (l *callerLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.reset) {
		for k, w := range l.windows {
			if !now.Before(w.reset) {
				delete(l.windows, k)
			}
		}
		l.windows[key] = rateWindow{count: 1, reset: now.Add(l.window)}
		return true
	}
	if current.count >= l.limit {
		return false
	}
	current.count++
	l.windows[key] = current
	return true
}

// middleware rejects callers that exceeded their window with 429.
func (l *callerLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(auth.CallerUID(r.Context())) {
			httpx.WriteError(r.Context(), w, httpx.NewError("resource-exhausted", "too many order requests", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
