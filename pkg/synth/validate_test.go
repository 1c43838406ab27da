// Tests for scenario validation: schema version, shape, and template syntax.
package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalSpan() SpanNodeConfig {
	return SpanNodeConfig{Service: "svc", Operation: "op", DelayMS: []int{1, 5}}
}

func minimalScenario(name string) ScenarioConfig {
	return ScenarioConfig{Name: name, RootSpan: minimalSpan(), path: "test.yaml"}
}

func TestValidateScenariosAcceptsMinimalScenario(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	warnings, errs := ValidateScenarios(base, []ScenarioConfig{minimalScenario("a")})
	assert.Empty(t, errs)
	assert.Empty(t, warnings)
}

func TestValidateScenariosRejectsUnsupportedSchemaVersion(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: 99}
	_, errs := ValidateScenarios(base, []ScenarioConfig{minimalScenario("a")})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs.Error(), "schema_version")
}

func TestValidateScenariosRejectsEmptySet(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	_, errs := ValidateScenarios(base, nil)
	require.NotEmpty(t, errs)
}

func TestValidateScenariosRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	_, errs := ValidateScenarios(base, []ScenarioConfig{minimalScenario("a"), minimalScenario("a")})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Reason, "duplicate")
}

func TestValidateScenariosDefaultsZeroWeight(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.Weight = 0
	scenarios := []ScenarioConfig{sc}
	_, errs := ValidateScenarios(base, scenarios)
	assert.Empty(t, errs)
	assert.Equal(t, 1, scenarios[0].Weight)
}

func TestValidateScenariosRejectsNegativeWeight(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.Weight = -1
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
}

func TestValidateScenariosUnknownServiceIsWarningNotError(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion, Services: []string{"known"}}
	warnings, errs := ValidateScenarios(base, []ScenarioConfig{minimalScenario("a")})
	assert.Empty(t, errs)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "svc")
}

func TestValidateScenariosRejectsInvalidKind(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.Kind = "WEIRD"
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Reason, "invalid kind")
}

func TestValidateScenariosRejectsBadDelayShape(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}

	sc := minimalScenario("a")
	sc.RootSpan.DelayMS = []int{10}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)

	sc2 := minimalScenario("b")
	sc2.RootSpan.DelayMS = []int{10, 5}
	_, errs2 := ValidateScenarios(base, []ScenarioConfig{sc2})
	require.NotEmpty(t, errs2)
}

func TestValidateScenariosRejectsMalformedAttributeTemplate(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.Attributes = map[string]any{"bad": "{{unterminated"}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
}

func TestValidateScenariosRejectsEmptyEventName(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.Events = []EventConfig{{Name: ""}}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
}

func TestValidateScenariosRejectsMalformedEventAttributeTemplate(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.Events = []EventConfig{{Name: "charged", Attributes: map[string]any{"user": "{{unbalanced"}}}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs.Error(), "events[0].attributes.user")
}

func TestValidateScenariosRejectsProbabilityOutOfRange(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.ErrorConditions = []ErrorConditionConfig{{Probability: 150, Type: "x", Message: "y"}}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
}

func TestValidateScenariosRejectsErrorConditionsSumOverHundred(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.ErrorConditions = []ErrorConditionConfig{
		{Probability: 60, Type: "a", Message: "m"},
		{Probability: 50, Type: "b", Message: "n"},
	}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Field == "root_span.error_conditions" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateScenariosRecursesIntoCalls(t *testing.T) {
	t.Parallel()

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	sc := minimalScenario("a")
	sc.RootSpan.Calls = []SpanNodeConfig{{Service: "", Operation: "op", DelayMS: []int{1, 2}}}
	_, errs := ValidateScenarios(base, []ScenarioConfig{sc})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Field, "calls[0]")
}
