package session

import (
	"context"

	"github.com/danielolaszy/poker/internal/logging"
)

// Chain writes to a primary writer and then to best-effort mirrors.
// A failing primary aborts the chain; failing mirrors are only logged.
type Chain struct {
	Primary EstimateWriter
	Mirrors []EstimateWriter
}

// WriteEstimate implements EstimateWriter.
func (c Chain) WriteEstimate(ctx context.Context, issueKey string, value float64) error {
	if c.Primary != nil {
		if err := c.Primary.WriteEstimate(ctx, issueKey, value); err != nil {
			return err
		}
	}
	for _, m := range c.Mirrors {
		if err := m.WriteEstimate(ctx, issueKey, value); err != nil {
			logging.Warn("failed to mirror estimate",
				"key", issueKey,
				"error", err)
		}
	}
	return nil
}
