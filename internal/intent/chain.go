package intent

import (
	"context"

	"go.uber.org/zap"
)

// Chain runs classifiers in order. A stage that errors or scores below the
// floor hands over to the next one; if none clears the floor the result is
// conversation/clarify.
type Chain struct {
	stages []Classifier
	floor  float64
	logger *zap.Logger
}

// NewChain builds a fallback chain.
func NewChain(floor float64, logger *zap.Logger, stages ...Classifier) *Chain {
	return &Chain{stages: stages, floor: floor, logger: logger}
}

// Classify never fails.
func (c *Chain) Classify(ctx context.Context, utterance string, hints Hints) Scored {
	for _, stage := range c.stages {
		s, err := stage.Classify(ctx, utterance, hints)
		if err != nil {
			c.logger.Warn("classifier stage failed, falling back",
				zap.String("stage", stage.Name()), zap.Error(err))
			continue
		}
		if s.Confidence >= c.floor {
			return s
		}
		c.logger.Debug("classifier below floor",
			zap.String("stage", stage.Name()),
			zap.String("category", string(s.Category)),
			zap.Float64("confidence", s.Confidence))
	}
	return Unrecognized(utterance)
}
