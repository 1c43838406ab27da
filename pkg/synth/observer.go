// SpanObserver interface for deriving signals (metrics, logs, persistence)
// from emitted spans. Observers receive span metadata after each span
// completes; this is a supplemental feature beyond the core trace protocol.
package synth

import "time"

// SpanInfo holds span metadata handed to observers after a span closes.
type SpanInfo struct {
	TraceID    string
	SpanID     string
	Service    string
	Operation  string
	Kind       Kind
	StartTime  time.Time
	EndTime    time.Time
	IsError    bool
	Attributes map[string]any
	Scenario   string
}

// Duration returns the span's wall-clock duration.
func (s SpanInfo) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// SpanObserver receives span metadata after each span is emitted.
type SpanObserver interface {
	Observe(info SpanInfo)
}
