package supervisor

import (
	"context"
	"time"
)

// RunIdleSweep periodically stops PTY handles that have seen no read,
// write, or resize for longer than idleTimeout, per spec.md §4.4's
// cleanup sweep. It blocks until ctx is cancelled.
func (s *Supervisor) RunIdleSweep(ctx context.Context, interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictIdlePTYs(idleTimeout)
		}
	}
}

func (s *Supervisor) evictIdlePTYs(idleTimeout time.Duration) {
	now := time.Now()
	for _, h := range s.snapshot() {
		if h.Kind != KindPTY || h.Killed() {
			continue
		}
		if now.Sub(h.LastActivity()) >= idleTimeout {
			s.Logger.Printf("supervisor: evicting idle pty %s (idle %s)", h.ID, now.Sub(h.LastActivity()))
			s.Stop(h.ID)
		}
	}
}
