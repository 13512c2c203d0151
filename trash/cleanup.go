package trash

import (
	"context"
	"time"

	"dupfinder/logging"
)

// DefaultCleanupInterval is how often RunCleanup sweeps by default
const DefaultCleanupInterval = 24 * time.Hour

// RunCleanup deletes expired items now and then every interval until ctx is
// done. A failed sweep is logged and retried on the next tick.
func RunCleanup(ctx context.Context, m *Manager, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	sweep := func() {
		n, err := m.DeleteExpired(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logging.LogError("Trash cleanup failed: %v", err)
			}
			return
		}
		if n > 0 {
			logging.LogInfo("Trash cleanup removed %d expired items", n)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
