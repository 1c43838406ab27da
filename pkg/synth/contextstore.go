// Bounded, concurrency-safe registry of exported span contexts used to
// wire producer -> consumer Links across traces.
package synth

import (
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ExportedContext is one entry inserted by a span's export_context_as.
type ExportedContext struct {
	Key        string
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	InsertedAt time.Time
}

// ContextStore is a process-wide bounded map keyed by the resolved
// export_context_as string. It evicts the oldest entry by InsertedAt when
// full, and supports lookup for link_from_context by exact key or by a
// pattern ending in "*" (prefix match).
type ContextStore struct {
	mu      sync.Mutex
	maxSize int
	order   []*ExportedContext // oldest first
	byKey   map[string][]*ExportedContext
}

// NewContextStore creates a store bounded to maxSize entries. maxSize <= 0
// is treated as 1 (a store that cannot hold at least one entry is not
// useful, and spec's default is 100).
func NewContextStore(maxSize int) *ContextStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &ContextStore{maxSize: maxSize, byKey: make(map[string][]*ExportedContext)}
}

// Insert records key -> (traceID, spanID), evicting the oldest entry if the
// store is at capacity.
func (c *ContextStore) Insert(key string, traceID trace.TraceID, spanID trace.SpanID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &ExportedContext{Key: key, TraceID: traceID, SpanID: spanID, InsertedAt: time.Now()}
	c.order = append(c.order, entry)
	c.byKey[key] = append(c.byKey[key], entry)

	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.removeFromIndex(oldest)
	}
}

func (c *ContextStore) removeFromIndex(entry *ExportedContext) {
	bucket := c.byKey[entry.Key]
	for i, e := range bucket {
		if e == entry {
			c.byKey[entry.Key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(c.byKey[entry.Key]) == 0 {
		delete(c.byKey, entry.Key)
	}
}

// Find returns every entry whose key matches pattern. A trailing "*"
// matches any suffix; any other pattern, including one with a "*" elsewhere,
// matches only a key equal to it. A "*" before the end is not a wildcard.
func (c *ContextStore) Find(pattern string) []*ExportedContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(pattern, "*") {
		bucket := c.byKey[pattern]
		out := make([]*ExportedContext, len(bucket))
		copy(out, bucket)
		return out
	}

	prefix := strings.TrimSuffix(pattern, "*")
	var out []*ExportedContext
	for key, bucket := range c.byKey {
		if strings.HasPrefix(key, prefix) {
			out = append(out, bucket...)
		}
	}
	return out
}

// Len reports the current number of entries, for tests and health checks.
func (c *ContextStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
