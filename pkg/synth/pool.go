// Worker pool: N concurrent workers sharing one Engine, each on its own
// deterministic RNG stream, generating traces at a random inter-trace
// interval and shutting down cooperatively between traces.
package synth

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// WorkerPool drives N workers, each running Engine.GenerateTrace in a
// loop. Workers share nothing but the Engine's Selector, Store, and
// exporter; each owns its own RNG stream.
type WorkerPool struct {
	Engine      *Engine
	Workers     int
	IntervalMin time.Duration
	IntervalMax time.Duration
	Seed        uint64
	Logger      *zap.Logger
}

// Run starts Workers goroutines and blocks until ctx is cancelled and every
// worker has finished its current trace.
func (p *WorkerPool) Run(ctx context.Context) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	n := p.Workers
	if n < 1 {
		n = 1
	}

	done := make(chan struct{}, n)
	for i := range n {
		rng := rand.New(rand.NewPCG(p.Seed, uint64(i)))
		go func(workerID int, rng *rand.Rand) {
			defer func() { done <- struct{}{} }()
			p.runWorker(ctx, workerID, rng, logger)
		}(i, rng)
	}

	for range n {
		<-done
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID int, rng *rand.Rand, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		interval := p.sampleInterval(rng)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := p.Engine.GenerateTrace(ctx, rng); err != nil {
			logger.Warn("trace aborted", zap.Int("worker", workerID), zap.Error(err))
		}
	}
}

func (p *WorkerPool) sampleInterval(rng *rand.Rand) time.Duration {
	lo, hi := p.IntervalMin, p.IntervalMax
	if hi <= lo {
		return lo
	}
	span := hi - lo
	return lo + time.Duration(rng.Int64N(int64(span)))
}
