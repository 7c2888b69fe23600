package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Processor runs SettlePending on a fixed interval until ctx ends.
type Processor struct {
	settler  *Settler
	interval time.Duration
	log      *zap.Logger
}

// NewProcessor creates a Processor. A non-positive interval means one minute.
func NewProcessor(settler *Settler, interval time.Duration, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Processor{
		settler:  settler,
		interval: interval,
		log:      log.With(zap.String("component", "settlement_processor")),
	}
}

// Start settles once immediately and then on every tick. A pass is never
// interrupted by the next tick; ticks that arrive during a pass are dropped.
func (p *Processor) Start(ctx context.Context) {
	p.log.Info("starting settlement processor", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("shutting down settlement processor")
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Processor) run(ctx context.Context) {
	if _, err := p.settler.SettlePending(ctx); err != nil && ctx.Err() == nil {
		p.log.Error("failed to settle pending wagers", zap.Error(err))
	}
}
