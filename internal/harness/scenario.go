package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of builds, version bumps and prunes with the
// outcome each should have.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the CUE catalog directory, relative to the scenario file.
	Catalog string `yaml:"catalog"`

	// Sources maps URLs to the content the fetcher serves for them.
	Sources map[string]string `yaml:"sources,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions are checked after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	ActionImport = "import"
	ActionBump   = "bump"
	ActionPrune  = "prune"
	ActionDrop   = "drop"
)

// Step is one action of the flow.
type Step struct {
	Action string `yaml:"action"`

	// Targets are type globs for import and drop, optional globs for prune.
	Targets []string `yaml:"targets,omitempty"`

	// Versions maps type names to their new version (bump).
	Versions map[string]string `yaml:"versions,omitempty"`

	// DryRun applies to import and prune.
	DryRun bool `yaml:"dry_run,omitempty"`

	// Expect is checked against the step's outcome. Nil checks nothing.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists type names per outcome. A nil list is not checked; an empty
// list expects none.
type Expect struct {
	Produced  []string `yaml:"produced,omitempty"`
	Satisfied []string `yaml:"satisfied,omitempty"`
	Planned   []string `yaml:"planned,omitempty"`
	Pruned    []string `yaml:"pruned,omitempty"`
	Dropped   []string `yaml:"dropped,omitempty"`

	// Error is the expected error code. Empty expects success.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	Type    string   `yaml:"type"`
	Dataset string   `yaml:"dataset,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Events  []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertBuilt       = "built"
	AssertMissing     = "missing"
	AssertLedgerCount = "ledger_count"
	AssertRowCount    = "row_count"
	AssertTraceOrder  = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file. The catalog path is
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if info, err := os.Stat(s.Catalog); err != nil || !info.IsDir() {
		return fmt.Errorf("catalog directory not found: %s", s.Catalog)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Action {
	case ActionImport, ActionDrop:
		if len(s.Targets) == 0 {
			return fmt.Errorf("flow[%d]: targets are required for %s", index, s.Action)
		}
	case ActionBump:
		if len(s.Versions) == 0 {
			return fmt.Errorf("flow[%d]: versions are required for bump", index)
		}
	case ActionPrune:
	case "":
		return fmt.Errorf("flow[%d]: action is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, s.Action)
	}
	if s.DryRun && s.Action != ActionImport && s.Action != ActionPrune {
		return fmt.Errorf("flow[%d]: dry_run only applies to import and prune", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertBuilt, AssertMissing:
		if a.Dataset == "" {
			return fmt.Errorf("assertions[%d]: dataset is required for %s", index, a.Type)
		}
	case AssertLedgerCount, AssertRowCount:
		if a.Dataset == "" {
			return fmt.Errorf("assertions[%d]: dataset is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
