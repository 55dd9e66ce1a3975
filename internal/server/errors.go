package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// errorWindow is how far back server errors count toward health.
const errorWindow = 5 * time.Minute

// ErrorCounter records 5xx responses over a sliding window. It feeds the
// health signal on the system stats endpoint.
type ErrorCounter struct {
	mu     sync.Mutex
	stamps []time.Time
	now    func() time.Time
}

func NewErrorCounter() *ErrorCounter {
	return &ErrorCounter{now: time.Now}
}

// Recent returns how many server errors occurred within the window.
func (c *ErrorCounter) Recent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(c.now())
	return len(c.stamps)
}

func (c *ErrorCounter) record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.prune(now)
	c.stamps = append(c.stamps, now)
}

// prune drops stamps older than the window; callers hold the lock.
func (c *ErrorCounter) prune(now time.Time) {
	cutoff := now.Add(-errorWindow)
	keep := c.stamps[:0]
	for _, t := range c.stamps {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	c.stamps = keep
}

// Middleware counts responses with a 5xx status.
func (c *ErrorCounter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusInternalServerError {
			c.record()
		}
	})
}
