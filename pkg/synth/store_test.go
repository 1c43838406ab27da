// Tests for the persistence contract and its two concrete stores.
package synth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore always rejects Add, for exercising TraceRecorder's error path.
type failingStore struct{}

func (failingStore) Add(context.Context, TraceRecord) error { return errors.New("disk full") }
func (failingStore) FetchRecent(context.Context, int) ([]TraceRecord, error) {
	return nil, nil
}
func (failingStore) HealthCheck(context.Context) error { return nil }

func TestInMemoryStoreAddAndFetchRecent(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, TraceRecord{TraceID: "t1", Service: "a"}))
	require.NoError(t, store.Add(ctx, TraceRecord{TraceID: "t2", Service: "b"}))

	recent, err := store.FetchRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t1", recent[0].TraceID)
	assert.Equal(t, "t2", recent[1].TraceID)
}

func TestInMemoryStoreEvictsOldestPastMaxSize(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, TraceRecord{TraceID: "t1"}))
	require.NoError(t, store.Add(ctx, TraceRecord{TraceID: "t2"}))
	require.NoError(t, store.Add(ctx, TraceRecord{TraceID: "t3"}))

	recent, err := store.FetchRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t2", recent[0].TraceID)
	assert.Equal(t, "t3", recent[1].TraceID)
}

func TestInMemoryStoreFetchRecentRespectsLimit(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Add(ctx, TraceRecord{TraceID: "t"}))
	}

	recent, err := store.FetchRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestInMemoryStoreHealthCheckAlwaysOK(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(10)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestNewInMemoryStoreDefaultsNonPositiveSize(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(0)
	assert.Equal(t, 1000, store.maxSize)
}

func TestTraceRecorderForwardsSpanInfoToStore(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(10)
	recorder := &TraceRecorder{Store: store}

	now := time.Now()
	recorder.Observe(SpanInfo{
		TraceID: "t1", SpanID: "s1", Service: "gateway", Operation: "op",
		Scenario: "checkout", StartTime: now, EndTime: now.Add(time.Millisecond),
		IsError: true, Attributes: map[string]any{"k": "v"},
	})

	recent, err := store.FetchRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "gateway", recent[0].Service)
	assert.True(t, recent[0].IsError)
}

func TestTraceRecorderCountsStoreAddFailure(t *testing.T) {
	t.Parallel()

	stats := &Stats{}
	recorder := &TraceRecorder{Store: failingStore{}, Stats: stats}

	now := time.Now()
	recorder.Observe(SpanInfo{
		TraceID: "t1", SpanID: "s1", Service: "gateway", Operation: "op",
		Scenario: "checkout", StartTime: now, EndTime: now.Add(time.Millisecond),
	})

	assert.Equal(t, int64(1), stats.StoreErrors.Load())
}

func TestTraceRecorderToleratesNilLoggerAndStats(t *testing.T) {
	t.Parallel()

	recorder := &TraceRecorder{Store: failingStore{}}
	assert.NotPanics(t, func() {
		recorder.Observe(SpanInfo{TraceID: "t1", SpanID: "s1", Service: "gateway", Operation: "op"})
	})
}

func TestSQLiteStoreAddAndFetchRecent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracegen.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Add(ctx, TraceRecord{
		TraceID: "t1", SpanID: "s1", Service: "a", Operation: "op", Scenario: "sc",
		StartTime: now, EndTime: now.Add(time.Millisecond), IsError: false,
		Attributes: map[string]any{"k": "v"},
	}))

	recent, err := store.FetchRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "t1", recent[0].TraceID)
	assert.Equal(t, "v", recent[0].Attributes["k"])
}

func TestSQLiteStoreHealthCheck(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracegen.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.HealthCheck(context.Background()))
}
