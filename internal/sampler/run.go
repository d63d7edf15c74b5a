package sampler

import (
	"context"
	"fmt"
	"time"
)

// Run emits a snapshot immediately and then once per interval until ctx is
// canceled.
func (s *Sampler) Run(ctx context.Context, interval time.Duration, message string) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}

	s.logger.Info("sampling started", "interval", interval)
	s.EmitSnapshot(ctx, message)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampling stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.EmitSnapshot(ctx, message)
		}
	}
}
