// Tests for the bounded exported-context registry.
package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestContextStoreInsertAndFindExact(t *testing.T) {
	t.Parallel()

	store := NewContextStore(10)
	tid := trace.TraceID{1}
	sid := trace.SpanID{1}
	store.Insert("order-1", tid, sid)

	found := store.Find("order-1")
	require.Len(t, found, 1)
	assert.Equal(t, tid, found[0].TraceID)
	assert.Equal(t, sid, found[0].SpanID)
}

func TestContextStoreFindMissingKeyReturnsEmpty(t *testing.T) {
	t.Parallel()

	store := NewContextStore(10)
	assert.Empty(t, store.Find("nope"))
}

func TestContextStoreFindPrefixWildcard(t *testing.T) {
	t.Parallel()

	store := NewContextStore(10)
	store.Insert("order-1", trace.TraceID{1}, trace.SpanID{1})
	store.Insert("order-2", trace.TraceID{2}, trace.SpanID{2})
	store.Insert("cart-1", trace.TraceID{3}, trace.SpanID{3})

	found := store.Find("order-*")
	assert.Len(t, found, 2)
}

func TestContextStoreFindNonWildcardIsExactOnly(t *testing.T) {
	t.Parallel()

	store := NewContextStore(10)
	store.Insert("order-1", trace.TraceID{1}, trace.SpanID{1})
	store.Insert("order-12", trace.TraceID{2}, trace.SpanID{2})

	assert.Len(t, store.Find("order-1"), 1)
}

func TestContextStoreEvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	store := NewContextStore(2)
	store.Insert("a", trace.TraceID{1}, trace.SpanID{1})
	store.Insert("b", trace.TraceID{2}, trace.SpanID{2})
	store.Insert("c", trace.TraceID{3}, trace.SpanID{3})

	assert.Equal(t, 2, store.Len())
	assert.Empty(t, store.Find("a"))
	assert.Len(t, store.Find("b"), 1)
	assert.Len(t, store.Find("c"), 1)
}

func TestNewContextStoreClampsNonPositiveSize(t *testing.T) {
	t.Parallel()

	store := NewContextStore(0)
	store.Insert("a", trace.TraceID{1}, trace.SpanID{1})
	store.Insert("b", trace.TraceID{2}, trace.SpanID{2})
	assert.Equal(t, 1, store.Len())
}

func TestContextStoreLenTracksInsertions(t *testing.T) {
	t.Parallel()

	store := NewContextStore(10)
	assert.Equal(t, 0, store.Len())
	store.Insert("a", trace.TraceID{1}, trace.SpanID{1})
	assert.Equal(t, 1, store.Len())
}
