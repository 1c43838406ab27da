// Freezing validated scenario documents into the immutable model the
// engine walks. Every template string is parsed exactly once here.
package synth

import "fmt"

// BuildScenarios freezes a validated set of scenario documents into
// immutable Scenario trees. Callers must run ValidateScenarios first and
// check for errors; BuildScenarios assumes the input is well-formed and
// only returns an error for a template parse failure or an invalid span
// kind, both of which ValidateScenarios already rejects.
func BuildScenarios(scenarios []ScenarioConfig) ([]*Scenario, error) {
	out := make([]*Scenario, 0, len(scenarios))
	for _, sc := range scenarios {
		s, err := buildScenario(sc)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func buildScenario(sc ScenarioConfig) (*Scenario, error) {
	weight := sc.Weight
	if weight == 0 {
		weight = 1
	}

	vars := make(map[string]*template, len(sc.Vars))
	for name, expr := range sc.Vars {
		t, err := parseTemplate(expr)
		if err != nil {
			return nil, fmt.Errorf("vars.%s: %w", name, err)
		}
		vars[name] = t
	}

	root, err := buildSpanNode(sc.RootSpan)
	if err != nil {
		return nil, fmt.Errorf("root_span: %w", err)
	}

	return &Scenario{Name: sc.Name, Weight: weight, Vars: vars, RootSpan: root}, nil
}

func buildSpanNode(cfg SpanNodeConfig) (*SpanNode, error) {
	kind, ok := parseKind(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("invalid kind %q", cfg.Kind)
	}

	var delay DelayRange
	if len(cfg.DelayMS) == 2 {
		delay = DelayRange{MinMS: cfg.DelayMS[0], MaxMS: cfg.DelayMS[1]}
	}

	attrs := make(map[string]*template, len(cfg.Attributes))
	for key, v := range cfg.Attributes {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		t, err := parseTemplate(s)
		if err != nil {
			return nil, fmt.Errorf("attributes.%s: %w", key, err)
		}
		attrs[key] = t
	}

	events := make([]EventSpec, 0, len(cfg.Events))
	for _, ev := range cfg.Events {
		evAttrs := make(map[string]*template, len(ev.Attributes))
		for key, v := range ev.Attributes {
			s, ok := v.(string)
			if !ok {
				s = fmt.Sprint(v)
			}
			t, err := parseTemplate(s)
			if err != nil {
				return nil, fmt.Errorf("events[%s].attributes.%s: %w", ev.Name, key, err)
			}
			evAttrs[key] = t
		}
		events = append(events, EventSpec{Name: ev.Name, Attributes: evAttrs, OffsetMS: ev.OffsetMS})
	}

	errConds := make([]ErrorCondition, 0, len(cfg.ErrorConditions))
	for _, ec := range cfg.ErrorConditions {
		errConds = append(errConds, ErrorCondition{Probability: ec.Probability, Type: ec.Type, Message: ec.Message})
	}

	var exportAs *template
	if cfg.ExportContextAs != "" {
		t, err := parseTemplate(cfg.ExportContextAs)
		if err != nil {
			return nil, fmt.Errorf("export_context_as: %w", err)
		}
		exportAs = t
	}

	calls := make([]*SpanNode, 0, len(cfg.Calls))
	for i, c := range cfg.Calls {
		child, err := buildSpanNode(c)
		if err != nil {
			return nil, fmt.Errorf("calls[%d]: %w", i, err)
		}
		calls = append(calls, child)
	}

	return &SpanNode{
		Service:         cfg.Service,
		Operation:       cfg.Operation,
		Kind:            kind,
		Delay:           delay,
		Attributes:      attrs,
		SemconvDomain:   cfg.SemconvDomain,
		Events:          events,
		ErrorConditions: errConds,
		ExportContextAs: exportAs,
		LinkFromContext: cfg.LinkFromContext,
		Calls:           calls,
	}, nil
}
