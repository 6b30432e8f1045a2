package pin

import (
	"fmt"
	"sync"
	"time"
)

// CooldownError reports a mass operation rejected by the Gate.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.Remaining.Round(time.Second))
}

// Gate throttles the initiation of mass operations: after one is armed,
// the next is rejected until the window elapses. The timer is armed at
// call time, not at operation completion, so a slow broadcast does not
// extend its own cooldown window.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = time.Minute
	}
	return &Gate{window: window, now: time.Now}
}

// CheckAndArm rejects with a CooldownError when called within the window
// of the previous arm (without re-arming); otherwise it arms the gate and
// succeeds. Callers must invoke this before any state mutation so a
// rejected request leaves no partial effect.
func (g *Gate) CheckAndArm() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if !g.last.IsZero() {
		if elapsed := now.Sub(g.last); elapsed < g.window {
			return &CooldownError{Remaining: g.window - elapsed}
		}
	}
	g.last = now
	return nil
}

// SetWindow applies a new window. Safe during hot-reload; an already armed
// timestamp keeps its arm time.
func (g *Gate) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	g.mu.Lock()
	g.window = window
	g.mu.Unlock()
}
