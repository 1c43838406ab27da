// YAML scenario document loading.
//
// A scenarios directory holds one optional _base.yaml declaring the known
// service names and schema version, plus any number of other files each
// declaring one scenario or a list of scenarios.
package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const baseFileName = "_base.yaml"

// CurrentSchemaVersion is the only schema_version this loader accepts.
const CurrentSchemaVersion = 1

// BaseConfig is the shared document: known service names (open-set, used
// only for a non-fatal warning) and the schema version.
type BaseConfig struct {
	SchemaVersion int      `yaml:"schema_version"`
	Services      []string `yaml:"services"`
}

// EventConfig is one entry of a SpanNode's events list.
type EventConfig struct {
	Name       string         `yaml:"name"`
	Attributes map[string]any `yaml:"attributes"`
	OffsetMS   *int           `yaml:"offset_ms"`
}

// ErrorConditionConfig is one entry of a SpanNode's error_conditions list.
type ErrorConditionConfig struct {
	Probability int    `yaml:"probability"`
	Type        string `yaml:"type"`
	Message     string `yaml:"message"`
}

// SpanNodeConfig is the raw YAML form of a SpanNode, recursive via Calls.
type SpanNodeConfig struct {
	Service         string                 `yaml:"service"`
	Operation       string                 `yaml:"operation"`
	Kind            string                 `yaml:"kind"`
	DelayMS         []int                  `yaml:"delay_ms"`
	Attributes      map[string]any         `yaml:"attributes"`
	SemconvDomain   string                 `yaml:"semconv_domain"`
	Events          []EventConfig          `yaml:"events"`
	ErrorConditions []ErrorConditionConfig `yaml:"error_conditions"`
	ExportContextAs string                 `yaml:"export_context_as"`
	LinkFromContext string                 `yaml:"link_from_context"`
	Calls           []SpanNodeConfig       `yaml:"calls"`
}

// ScenarioConfig is the raw YAML form of a Scenario.
type ScenarioConfig struct {
	Name     string            `yaml:"name"`
	Weight   int               `yaml:"weight"`
	Vars     map[string]string `yaml:"vars"`
	RootSpan SpanNodeConfig    `yaml:"root_span"`
	path     string            // source file, set by the loader
}

// scenarioFile is the top-level shape of a non-base document: either a
// single scenario, or {scenarios: [...]}, or a bare list of scenarios.
type scenarioFile struct {
	single    *ScenarioConfig
	scenarios []ScenarioConfig
}

func (f *scenarioFile) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []ScenarioConfig
		if err := value.Decode(&list); err != nil {
			return err
		}
		f.scenarios = list
		return nil
	case yaml.MappingNode:
		var wrapper struct {
			Scenarios []ScenarioConfig `yaml:"scenarios"`
		}
		if err := value.Decode(&wrapper); err == nil && wrapper.Scenarios != nil {
			f.scenarios = wrapper.Scenarios
			return nil
		}
		var single ScenarioConfig
		if err := value.Decode(&single); err != nil {
			return err
		}
		f.single = &single
		return nil
	default:
		return fmt.Errorf("scenario document must be a mapping or a list, got %v", value.Kind)
	}
}

// LoadScenarios reads every *.yaml file in dir, merging _base.yaml if
// present. It does not validate scenario content beyond what is required
// to parse YAML; call ValidateScenarios on the result before use.
func LoadScenarios(dir string) (*BaseConfig, []ScenarioConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading scenarios dir %q: %w", dir, err)
	}

	base := &BaseConfig{SchemaVersion: CurrentSchemaVersion}
	var scenarios []ScenarioConfig

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isYAMLFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %q: %w", p, err)
		}

		if name == baseFileName {
			if err := yaml.Unmarshal(data, base); err != nil {
				return nil, nil, fmt.Errorf("parsing %q: %w", p, err)
			}
			continue
		}

		var doc scenarioFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		if doc.single != nil {
			doc.single.path = p
			scenarios = append(scenarios, *doc.single)
		}
		for i := range doc.scenarios {
			doc.scenarios[i].path = p
			scenarios = append(scenarios, doc.scenarios[i])
		}
	}

	return base, scenarios, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

