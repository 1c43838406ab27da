// Tests for the worker pool's interval sampling and cooperative shutdown.
package synth

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestSampleIntervalWithinBounds(t *testing.T) {
	t.Parallel()

	pool := &WorkerPool{IntervalMin: 10 * time.Millisecond, IntervalMax: 20 * time.Millisecond}
	rng := rand.New(rand.NewPCG(1, 1))
	for range 50 {
		d := pool.sampleInterval(rng)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestSampleIntervalDegenerateRangeReturnsMin(t *testing.T) {
	t.Parallel()

	pool := &WorkerPool{IntervalMin: 15 * time.Millisecond, IntervalMax: 15 * time.Millisecond}
	rng := rand.New(rand.NewPCG(1, 1))
	assert.Equal(t, 15*time.Millisecond, pool.sampleInterval(rng))
}

func TestSampleIntervalInvertedRangeReturnsMin(t *testing.T) {
	t.Parallel()

	pool := &WorkerPool{IntervalMin: 15 * time.Millisecond, IntervalMax: 5 * time.Millisecond}
	rng := rand.New(rand.NewPCG(1, 1))
	assert.Equal(t, 15*time.Millisecond, pool.sampleInterval(rng))
}

func TestWorkerPoolRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	scenario := &Scenario{Name: "s", Weight: 1, RootSpan: &SpanNode{Service: "a", Operation: "op"}}
	engine := &Engine{
		Selector:  NewSelector([]*Scenario{scenario}),
		Store:     NewContextStore(10),
		TracerFor: func(s string) trace.Tracer { return tp.Tracer(s) },
		Resolver:  &Resolver{MaxIterations: 10},
		Stats:     &Stats{},
	}

	pool := &WorkerPool{
		Engine:      engine,
		Workers:     2,
		IntervalMin: time.Millisecond,
		IntervalMax: 2 * time.Millisecond,
		Seed:        1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WorkerPool.Run did not return after context cancellation")
	}

	assert.Greater(t, engine.Stats.TracesCompleted.Load(), int64(0))
}

func TestWorkerPoolRunDefaultsWorkersToOne(t *testing.T) {
	t.Parallel()

	scenario := &Scenario{Name: "s", Weight: 1, RootSpan: &SpanNode{Service: "a", Operation: "op"}}
	engine := &Engine{
		Selector: NewSelector([]*Scenario{scenario}),
		Store:    NewContextStore(10),
		Resolver: &Resolver{MaxIterations: 10},
		Stats:    &Stats{},
	}

	pool := &WorkerPool{Engine: engine, Workers: 0, IntervalMin: time.Millisecond, IntervalMax: 2 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WorkerPool.Run did not return")
	}
}

func TestWorkerPoolRunIndependentRNGStreamsPerWorker(t *testing.T) {
	t.Parallel()

	// Two workers with the same seed but distinct worker IDs must not
	// draw from the same RNG sequence.
	rngA := rand.New(rand.NewPCG(5, 0))
	rngB := rand.New(rand.NewPCG(5, 1))
	require.NotEqual(t, rngA.Uint64(), rngB.Uint64())
}
