package node

import (
	"context"
	"time"
)

// --- Tick Driver ---
//
// Commands already catch up on entry; this loop keeps an idle settlement
// advancing and its snapshot fresh even when nobody issues commands.

const tickPollInterval = 10 * time.Second

func (c *Controller) StartTickLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(tickPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.CatchUpTicks(); n > 0 {
					c.log.Printf("processed %d ticks (now at %d)", n, c.clock.CurrentTick(c.now()))
					c.mu.Lock()
					c.view.UpdateRanking(c.state.ID, c.buildRankingLocked())
					c.mu.Unlock()
				}
			}
		}
	}()
}
