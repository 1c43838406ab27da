// The trace generation engine: selects a scenario, walks its span tree
// with real wall-clock timing, and emits spans through per-service OTel
// tracers while consulting and updating the Context Store.
package synth

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stats accumulates counters across the lifetime of an Engine, safe for
// concurrent use by a worker pool.
type Stats struct {
	TracesCompleted     atomic.Int64
	TracesAborted       atomic.Int64
	SpansEmitted        atomic.Int64
	SimulatedErrors     atomic.Int64
	UnresolvedTemplates atomic.Int64
	StoreErrors         atomic.Int64
}

// DomainResolver maps a semconv_domain name to attribute generators, kept
// decoupled from any particular registry implementation to avoid an import
// cycle with the package that builds one from embedded semantic convention
// data.
type DomainResolver func(domain string) map[string]AttributeGenerator

// Engine walks scenario trees and emits spans. It holds no scenario set of
// its own; callers pass a Selector built once at startup.
type Engine struct {
	Selector       *Selector
	Store          *ContextStore
	TracerFor      func(service string) trace.Tracer
	Resolver       *Resolver
	DomainResolver DomainResolver
	Observers      []SpanObserver
	Stats          *Stats
}

// GenerateTrace selects one scenario and emits its full span tree. It
// returns only on a real error (UnresolvedTemplateError); simulated span
// errors are not returned, they are recorded on the emitted spans.
func (e *Engine) GenerateTrace(ctx context.Context, rng *rand.Rand) error {
	scenario := e.Selector.Select(rng)

	vars := make(map[string]any, len(scenario.Vars))
	env := &Environment{Rng: rng, Vars: vars}
	for _, name := range sortedKeys(scenario.Vars) {
		v, err := e.Resolver.Resolve(scenario.Vars[name], env)
		if err != nil {
			e.Stats.UnresolvedTemplates.Add(1)
			e.Stats.TracesAborted.Add(1)
			return err
		}
		vars[name] = v
	}

	_, err := e.emit(ctx, scenario.RootSpan, env, scenario.Name)
	if err != nil {
		e.Stats.TracesAborted.Add(1)
		return err
	}
	e.Stats.TracesCompleted.Add(1)
	return nil
}

// emit implements the per-span protocol: allocate span context, resolve
// attributes, attach links, export context, evaluate error roulette,
// record events, recurse into children, then close. It returns the span's
// end time so the parent can enforce temporal nesting, which in this
// implementation is structural: every sleep really happens, so the parent
// cannot observe its own end before a child's.
func (e *Engine) emit(ctx context.Context, node *SpanNode, env *Environment, scenarioName string) (time.Time, error) {
	rng := env.Rng
	ownDuration := sampleDelay(node.Delay, rng)

	tracerFor := e.TracerFor
	if tracerFor == nil {
		tracerFor = func(string) trace.Tracer { return nil }
	}
	tracer := tracerFor(node.Service)

	resolvedAttrs, err := e.resolveAttributes(node, env)
	if err != nil {
		return time.Time{}, err
	}

	var links []trace.Link
	if node.LinkFromContext != "" {
		for _, ec := range e.Store.Find(node.LinkFromContext) {
			links = append(links, trace.Link{
				SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
					TraceID:    ec.TraceID,
					SpanID:     ec.SpanID,
					TraceFlags: trace.FlagsSampled,
				}),
			})
		}
	}

	attrKVs := attributesToKV(resolvedAttrs)
	startOpts := []trace.SpanStartOption{
		trace.WithSpanKind(node.Kind.otel()),
		trace.WithAttributes(attrKVs...),
	}
	if len(links) > 0 {
		startOpts = append(startOpts, trace.WithLinks(links...))
	}

	var span trace.Span
	if tracer != nil {
		ctx, span = tracer.Start(ctx, node.Operation, startOpts...)
	}
	startTime := time.Now()
	e.Stats.SpansEmitted.Add(1)

	var ctxKeyValue any
	var ctxKeySet bool
	if node.ExportContextAs != nil {
		key, err := e.Resolver.ResolveString(node.ExportContextAs, env)
		if err != nil {
			endSpan(span, false, "", "", startTime)
			return startTime, err
		}
		ctxKeyValue, ctxKeySet = key, true
		if span != nil {
			sc := span.SpanContext()
			e.Store.Insert(key, sc.TraceID(), sc.SpanID())
		}
	}

	winner := rollErrorConditions(node.ErrorConditions, rng)
	if winner != nil {
		e.Stats.SimulatedErrors.Add(1)
	}

	eventEnv := &Environment{Rng: rng, Vars: env.Vars, ParentAttributes: env.ParentAttributes, ContextKeyValue: ctxKeyValue, ContextKeySet: ctxKeySet}
	if err := e.emitEvents(span, node.Events, startTime, ownDuration, eventEnv); err != nil {
		endSpan(span, false, "", "", startTime)
		return startTime, err
	}

	childEnv := env.childEnv(resolvedAttrs)
	preDelay := ownDuration / 2
	sleep(ctx, preDelay)

	lastEnd := startTime.Add(ownDuration)
	for _, child := range node.Calls {
		childEndTime, err := e.emit(ctx, child, childEnv, scenarioName)
		if err != nil {
			if span != nil {
				span.RecordError(err)
			}
			endSpan(span, false, "", "", time.Now())
			return time.Now(), err
		}
		if childEndTime.After(lastEnd) {
			lastEnd = childEndTime
		}
	}

	postDelay := ownDuration - preDelay
	sleep(ctx, postDelay)

	endTime := time.Now()
	if endTime.Before(lastEnd) {
		endTime = lastEnd
	}

	isError := winner != nil
	var errType, errMsg string
	if isError {
		errType, errMsg = winner.Type, winner.Message
		if span != nil {
			span.AddEvent("exception", trace.WithTimestamp(endTime), trace.WithAttributes(
				attribute.String("exception.type", errType),
				attribute.String("exception.message", errMsg),
			))
		}
	}

	endSpan(span, isError, errType, errMsg, endTime)

	var traceID, spanID string
	if span != nil {
		sc := span.SpanContext()
		traceID, spanID = sc.TraceID().String(), sc.SpanID().String()
	}
	for _, obs := range e.Observers {
		obs.Observe(SpanInfo{
			TraceID: traceID, SpanID: spanID,
			Service: node.Service, Operation: node.Operation, Kind: node.Kind,
			StartTime: startTime, EndTime: endTime, IsError: isError,
			Attributes: resolvedAttrs, Scenario: scenarioName,
		})
	}

	return endTime, nil
}

func (e *Engine) resolveAttributes(node *SpanNode, env *Environment) (map[string]any, error) {
	resolved := make(map[string]any, len(node.Attributes))

	if node.SemconvDomain != "" && e.DomainResolver != nil {
		for key, gen := range e.DomainResolver(node.SemconvDomain) {
			resolved[key] = gen.Generate(env.Rng)
		}
	}

	for _, key := range sortedKeys(node.Attributes) {
		v, err := e.Resolver.Resolve(node.Attributes[key], env)
		if err != nil {
			return nil, err
		}
		resolved[key] = v
	}

	return resolved, nil
}

func (e *Engine) emitEvents(span trace.Span, events []EventSpec, startTime time.Time, ownDuration time.Duration, env *Environment) error {
	n := len(events)
	for i, ev := range events {
		var offset time.Duration
		if ev.OffsetMS != nil {
			offset = time.Duration(*ev.OffsetMS) * time.Millisecond
		} else {
			offset = ownDuration * time.Duration(i+1) / time.Duration(n+1)
		}

		attrs := make(map[string]any, len(ev.Attributes))
		for _, key := range sortedKeys(ev.Attributes) {
			v, err := e.Resolver.Resolve(ev.Attributes[key], env)
			if err != nil {
				return err
			}
			attrs[key] = v
		}

		if span != nil {
			span.AddEvent(ev.Name, trace.WithTimestamp(startTime.Add(offset)), trace.WithAttributes(attributesToKV(attrs)...))
		}
	}
	return nil
}

func endSpan(span trace.Span, isError bool, _, errMsg string, endTime time.Time) {
	if span == nil {
		return
	}
	if isError {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(endTime))
}

func rollErrorConditions(conditions []ErrorCondition, rng *rand.Rand) *ErrorCondition {
	for i := range conditions {
		roll := rng.IntN(100)
		if roll < conditions[i].Probability {
			return &conditions[i]
		}
	}
	return nil
}

func sampleDelay(d DelayRange, rng *rand.Rand) time.Duration {
	span := d.MaxMS - d.MinMS + 1
	if span <= 0 {
		span = 1
	}
	ms := d.MinMS + rng.IntN(span)
	return time.Duration(ms) * time.Millisecond
}

// sleep blocks for d or until ctx is cancelled, whichever comes first. A
// cancelled context lets an in-flight trace finish its current sleep
// promptly on shutdown rather than waiting out the full delay.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func attributesToKV(attrs map[string]any) []attribute.KeyValue {
	keys := sortedKeys(attrs)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, toKeyValue(k, attrs[k]))
	}
	return out
}

func toKeyValue(key string, v any) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(key, x)
	case int:
		return attribute.Int(key, x)
	case int64:
		return attribute.Int64(key, x)
	case float64:
		return attribute.Float64(key, x)
	case bool:
		return attribute.Bool(key, x)
	default:
		return attribute.String(key, fmt.Sprint(x))
	}
}
