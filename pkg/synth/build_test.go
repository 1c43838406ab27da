// Tests for freezing validated scenario documents into the immutable model.
package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScenariosFreezesFields(t *testing.T) {
	t.Parallel()

	cfgs := []ScenarioConfig{
		{
			Name:   "checkout",
			Weight: 2,
			Vars:   map[string]string{"session": "{{random.uuid}}"},
			RootSpan: SpanNodeConfig{
				Service:   "gateway",
				Operation: "POST /checkout",
				Kind:      "SERVER",
				DelayMS:   []int{10, 50},
				Attributes: map[string]any{
					"http.status_code": 200,
				},
				Events: []EventConfig{
					{Name: "validated", Attributes: map[string]any{"ok": true}},
				},
				ErrorConditions: []ErrorConditionConfig{
					{Probability: 5, Type: "timeout", Message: "upstream timeout"},
				},
				ExportContextAs: "{{context_key}}",
				Calls: []SpanNodeConfig{
					{Service: "backend", Operation: "charge", DelayMS: []int{1, 2}},
				},
			},
		},
	}

	scenarios, err := BuildScenarios(cfgs)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	s := scenarios[0]
	assert.Equal(t, "checkout", s.Name)
	assert.Equal(t, 2, s.Weight)
	require.Contains(t, s.Vars, "session")

	root := s.RootSpan
	assert.Equal(t, "gateway", root.Service)
	assert.Equal(t, KindServer, root.Kind)
	assert.Equal(t, DelayRange{MinMS: 10, MaxMS: 50}, root.Delay)
	require.Contains(t, root.Attributes, "http.status_code")
	require.Len(t, root.Events, 1)
	assert.Equal(t, "validated", root.Events[0].Name)
	require.Len(t, root.ErrorConditions, 1)
	assert.Equal(t, "timeout", root.ErrorConditions[0].Type)
	require.NotNil(t, root.ExportContextAs)
	require.Len(t, root.Calls, 1)
	assert.Equal(t, "backend", root.Calls[0].Service)
}

func TestBuildScenariosDefaultsZeroWeightToOne(t *testing.T) {
	t.Parallel()

	cfgs := []ScenarioConfig{{Name: "a", RootSpan: minimalSpan()}}
	scenarios, err := BuildScenarios(cfgs)
	require.NoError(t, err)
	assert.Equal(t, 1, scenarios[0].Weight)
}

func TestBuildScenariosRejectsInvalidKind(t *testing.T) {
	t.Parallel()

	span := minimalSpan()
	span.Kind = "NOT_A_KIND"
	_, err := BuildScenarios([]ScenarioConfig{{Name: "a", RootSpan: span}})
	assert.Error(t, err)
}

func TestBuildScenariosRejectsMalformedVarTemplate(t *testing.T) {
	t.Parallel()

	cfgs := []ScenarioConfig{{
		Name:     "a",
		Vars:     map[string]string{"bad": "{{unterminated"},
		RootSpan: minimalSpan(),
	}}
	_, err := BuildScenarios(cfgs)
	assert.Error(t, err)
}

func TestBuildScenariosRejectsMalformedAttributeTemplate(t *testing.T) {
	t.Parallel()

	span := minimalSpan()
	span.Attributes = map[string]any{"bad": "{{unterminated"}
	_, err := BuildScenarios([]ScenarioConfig{{Name: "a", RootSpan: span}})
	assert.Error(t, err)
}

func TestBuildScenariosCoercesNonStringAttributeToTemplate(t *testing.T) {
	t.Parallel()

	span := minimalSpan()
	span.Attributes = map[string]any{"count": 42}
	scenarios, err := BuildScenarios([]ScenarioConfig{{Name: "a", RootSpan: span}})
	require.NoError(t, err)
	require.Contains(t, scenarios[0].RootSpan.Attributes, "count")
}

func TestBuildScenariosRecursesIntoCalls(t *testing.T) {
	t.Parallel()

	span := minimalSpan()
	span.Calls = []SpanNodeConfig{
		{Service: "a", Operation: "op", DelayMS: []int{1, 2},
			Calls: []SpanNodeConfig{{Service: "b", Operation: "op2", DelayMS: []int{1, 2}}}},
	}
	scenarios, err := BuildScenarios([]ScenarioConfig{{Name: "tree", RootSpan: span}})
	require.NoError(t, err)
	require.Len(t, scenarios[0].RootSpan.Calls, 1)
	require.Len(t, scenarios[0].RootSpan.Calls[0].Calls, 1)
	assert.Equal(t, "b", scenarios[0].RootSpan.Calls[0].Calls[0].Service)
}

func TestBuildScenariosPropagatesNamedError(t *testing.T) {
	t.Parallel()

	span := minimalSpan()
	span.Kind = "BOGUS"
	_, err := BuildScenarios([]ScenarioConfig{{Name: "named", RootSpan: span}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "named")
}
