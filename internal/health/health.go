// Package health distinguishes liveness (process up) from readiness (the
// long-running loops are actually turning over).
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Heartbeat is beaten by a loop on every pass; readiness checks its recency.
type Heartbeat struct {
	name string
	last atomic.Int64
}

// Beat records a pass now.
func (h *Heartbeat) Beat() { h.last.Store(time.Now().UnixNano()) }

// KeepAlive beats every interval until ctx is done, for loops that block
// indefinitely while idle (an empty topic is not unreadiness).
func (h *Heartbeat) KeepAlive(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		h.Beat()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.Beat()
			}
		}
	}()
}

// Alive reports whether the loop has beaten within maxAge.
func (h *Heartbeat) Alive(maxAge time.Duration) bool {
	last := h.last.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) <= maxAge
}

// Registry tracks the heartbeats a binary's readiness depends on.
type Registry struct {
	mu     sync.Mutex
	beats  []*Heartbeat
	maxAge time.Duration
}

// NewRegistry builds a registry with the staleness bound for readiness.
func NewRegistry(maxAge time.Duration) *Registry {
	return &Registry{maxAge: maxAge}
}

// Register adds a named loop heartbeat.
func (r *Registry) Register(name string) *Heartbeat {
	hb := &Heartbeat{name: name}
	r.mu.Lock()
	r.beats = append(r.beats, hb)
	r.mu.Unlock()
	return hb
}

// Status reports per-loop aliveness and the overall readiness verdict.
func (r *Registry) Status() (bool, map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ready := true
	loops := make(map[string]bool, len(r.beats))
	for _, hb := range r.beats {
		alive := hb.Alive(r.maxAge)
		loops[hb.name] = alive
		ready = ready && alive
	}
	return ready, loops
}

// Register mounts /healthz and /readyz on a gin engine.
func Register(r *gin.Engine, reg *Registry) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ready, loops := reg.Status()
		code := http.StatusOK
		status := "ready"
		if !ready {
			code = http.StatusServiceUnavailable
			status = "not ready"
		}
		c.JSON(code, gin.H{"status": status, "loops": loops})
	})
}

// Router builds a bare engine exposing only the health surface, for the worker
// binaries that have no business API.
func Router(reg *Registry) *gin.Engine {
	r := gin.New()
	Register(r, reg)
	return r
}
