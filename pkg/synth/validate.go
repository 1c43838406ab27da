// Scenario validation: structural checks the loader runs before any trace
// may be emitted. Validation is all-or-nothing; a single error fails
// startup, the set of errors returned together so every problem can be
// reported at once.
package synth

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

var validKinds = map[string]bool{
	"": true, "INTERNAL": true, "SERVER": true, "CLIENT": true, "PRODUCER": true, "CONSUMER": true,
}

// ValidateScenarios checks every scenario against the schema in the data
// model: root_span presence, weight, delay_ms shape, kind enumeration,
// probability bounds, error_conditions sum, and template syntax. It also
// emits a non-fatal warning (not an error) for scenarios referencing a
// service absent from base.Services, since services are an open set.
func ValidateScenarios(base *BaseConfig, scenarios []ScenarioConfig) (warnings []string, errs ValidationErrors) {
	if base.SchemaVersion != 0 && base.SchemaVersion != CurrentSchemaVersion {
		errs = append(errs, &ValidationError{
			Path: baseFileName, Field: "schema_version",
			Reason: fmt.Sprintf("unsupported schema_version %d, expected %d", base.SchemaVersion, CurrentSchemaVersion),
		})
	}

	known := make(map[string]bool, len(base.Services))
	for _, s := range base.Services {
		known[s] = true
	}

	if len(scenarios) == 0 {
		errs = append(errs, &ValidationError{Path: "<dir>", Field: "scenarios", Reason: "no scenarios found"})
	}

	seenNames := make(map[string]bool, len(scenarios))
	for i := range scenarios {
		sc := &scenarios[i]
		path := sc.path
		if sc.Name == "" {
			errs = append(errs, &ValidationError{Path: path, Field: "name", Reason: "scenario name must not be empty"})
		} else if seenNames[sc.Name] {
			errs = append(errs, &ValidationError{Path: path, Field: "name", Reason: fmt.Sprintf("duplicate scenario name %q", sc.Name)})
		}
		seenNames[sc.Name] = true

		if sc.Weight == 0 {
			sc.Weight = 1
		}
		if sc.Weight < 1 {
			errs = append(errs, &ValidationError{Path: path, Field: "weight", Reason: "weight must be >= 1"})
		}

		for name, expr := range sc.Vars {
			if !hasBalancedTemplateDelimiters(expr) {
				errs = append(errs, &ValidationError{
					Path: path, Field: "vars." + name,
					Reason: fmt.Sprintf("malformed template expression %q", expr),
				})
			}
		}

		validateSpanNode(path, "root_span", &sc.RootSpan, known, &warnings, &errs)
	}
	return warnings, errs
}

func validateSpanNode(path, field string, node *SpanNodeConfig, known map[string]bool, warnings *[]string, errs *ValidationErrors) {
	if node.Service == "" {
		*errs = append(*errs, &ValidationError{Path: path, Field: field + ".service", Reason: "service must not be empty"})
	} else if len(known) > 0 && !known[node.Service] {
		*warnings = append(*warnings, fmt.Sprintf("%s: %s.service %q is not listed in %s", path, field, node.Service, baseFileName))
	}

	if !validKinds[node.Kind] {
		*errs = append(*errs, &ValidationError{Path: path, Field: field + ".kind", Reason: fmt.Sprintf("invalid kind %q", node.Kind)})
	}

	if len(node.DelayMS) != 2 {
		*errs = append(*errs, &ValidationError{Path: path, Field: field + ".delay_ms", Reason: "delay_ms must be a two-element list [min, max]"})
	} else {
		min, max := node.DelayMS[0], node.DelayMS[1]
		if min < 0 || max < min {
			*errs = append(*errs, &ValidationError{
				Path: path, Field: field + ".delay_ms",
				Reason: fmt.Sprintf("delay_ms must satisfy 0 <= min <= max, got [%d, %d]", min, max),
			})
		}
	}

	for key, v := range node.Attributes {
		if s, ok := v.(string); ok {
			if !norm.NFC.IsNormalString(s) {
				*warnings = append(*warnings, fmt.Sprintf("%s: %s.attributes.%s is not NFC-normalised", path, field, key))
			}
			if !hasBalancedTemplateDelimiters(s) {
				*errs = append(*errs, &ValidationError{
					Path: path, Field: field + ".attributes." + key,
					Reason: fmt.Sprintf("malformed template expression %q", s),
				})
			}
		}
	}

	for i, ev := range node.Events {
		evField := fmt.Sprintf("%s.events[%d]", field, i)
		if ev.Name == "" {
			*errs = append(*errs, &ValidationError{Path: path, Field: evField + ".name", Reason: "event name must not be empty"})
		}
		for key, v := range ev.Attributes {
			if s, ok := v.(string); ok && !hasBalancedTemplateDelimiters(s) {
				*errs = append(*errs, &ValidationError{
					Path: path, Field: evField + ".attributes." + key,
					Reason: fmt.Sprintf("malformed template expression %q", s),
				})
			}
		}
	}

	sumProb := 0
	for i, ec := range node.ErrorConditions {
		ecField := fmt.Sprintf("%s.error_conditions[%d]", field, i)
		if ec.Probability < 0 || ec.Probability > 100 {
			*errs = append(*errs, &ValidationError{Path: path, Field: ecField + ".probability", Reason: "probability must be in [0, 100]"})
		}
		sumProb += ec.Probability
	}
	if sumProb > 100 {
		*errs = append(*errs, &ValidationError{
			Path: path, Field: field + ".error_conditions",
			Reason: fmt.Sprintf("probabilities sum to %d, must be <= 100", sumProb),
		})
	}

	if node.ExportContextAs != "" && !hasBalancedTemplateDelimiters(node.ExportContextAs) {
		*errs = append(*errs, &ValidationError{Path: path, Field: field + ".export_context_as", Reason: "malformed template expression"})
	}

	for i := range node.Calls {
		validateSpanNode(path, fmt.Sprintf("%s.calls[%d]", field, i), &node.Calls[i], known, warnings, errs)
	}
}
