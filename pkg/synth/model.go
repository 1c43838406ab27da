// Package synth implements the scenario-driven synthetic trace generator:
// loading and validating scenario trees, resolving templated values per
// trace, walking the tree to synthesise spans, and wiring cross-trace links
// through a bounded context store.
package synth

import "go.opentelemetry.io/otel/trace"

// Kind enumerates the span kinds a SpanNode may declare.
type Kind int

const (
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

func (k Kind) otel() trace.SpanKind {
	switch k {
	case KindServer:
		return trace.SpanKindServer
	case KindClient:
		return trace.SpanKindClient
	case KindProducer:
		return trace.SpanKindProducer
	case KindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

func parseKind(s string) (Kind, bool) {
	switch s {
	case "", "INTERNAL":
		return KindInternal, true
	case "SERVER":
		return KindServer, true
	case "CLIENT":
		return KindClient, true
	case "PRODUCER":
		return KindProducer, true
	case "CONSUMER":
		return KindConsumer, true
	default:
		return KindInternal, false
	}
}

// DelayRange is the inclusive millisecond range a span's own duration is
// sampled from, uniformly, independent of any nested children.
type DelayRange struct {
	MinMS int
	MaxMS int
}

// EventSpec is a span event declared on a SpanNode. OffsetMS, when non-nil,
// places the event at a fixed offset from span start; otherwise events are
// spaced evenly across the span's own sampled duration, in declared order.
type EventSpec struct {
	Name       string
	Attributes map[string]*template
	OffsetMS   *int
}

// ErrorCondition is one entry of a SpanNode's error roulette. Conditions are
// evaluated in declared order; at most one fires per span.
type ErrorCondition struct {
	Probability int // percentage, 0-100
	Type        string
	Message     string
}

// SpanNode is a frozen, immutable node of a scenario's call tree. Scenarios
// are validated and frozen once at load time; the engine only ever reads
// a SpanNode, it never mutates one.
type SpanNode struct {
	Service    string
	Operation  string
	Kind       Kind
	Delay      DelayRange
	Attributes map[string]*template

	// SemconvDomain, when non-empty, seeds Attributes from a semantic
	// convention group before the Attributes templates are resolved on top.
	SemconvDomain string

	Events          []EventSpec
	ErrorConditions []ErrorCondition

	ExportContextAs *template // nil if absent
	LinkFromContext string    // glob pattern, empty if absent

	Calls []*SpanNode
}

// Scenario is a named, weighted trace template, frozen after validation.
type Scenario struct {
	Name     string
	Weight   int
	Vars     map[string]*template
	RootSpan *SpanNode
}
