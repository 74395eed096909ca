// Package automation runs experiments headless on a simulated clock, singly
// or as scripted scenarios.
package automation

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/san-kum/gfxlab/internal/core"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of headless runs.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Parallel runs every step at once. Results keep step order either way.
	Parallel bool   `yaml:"parallel"`
	Steps    []Step `yaml:"steps"`
}

type Step struct {
	Experiment string `yaml:"experiment"`
	Profile    string `yaml:"profile"`
	// Budget overrides the profile's device memory budget when non-zero.
	Budget    uint64        `yaml:"budget"`
	Preset    string        `yaml:"preset"`
	Duration  float64       `yaml:"duration"`
	FrameRate int           `yaml:"frame_rate"`
	Actions   []TimedAction `yaml:"actions"`
	// Squeeze shrinks the device budget mid-run.
	Squeeze []BudgetChange `yaml:"squeeze"`
}

// BudgetChange sets the device memory budget before the first frame at or
// after At seconds. A zero Budget pins it to the bytes in use at that point.
type BudgetChange struct {
	At     float64 `yaml:"at"`
	Budget uint64  `yaml:"budget"`
}

// TimedAction is dispatched before the first frame at or after At seconds.
type TimedAction struct {
	At     float64    `yaml:"at"`
	Kind   string     `yaml:"kind"`
	Name   string     `yaml:"name,omitempty"`
	Value  float64    `yaml:"value,omitempty"`
	Vec    [3]float64 `yaml:"vec,omitempty"`
	Source string     `yaml:"source,omitempty"`
}

func (a TimedAction) Action() (core.Action, error) {
	kind, err := core.ParseActionKind(a.Kind)
	if err != nil {
		return core.Action{}, err
	}
	return core.Action{Kind: kind, Name: a.Name, Value: a.Value, Vec: a.Vec, Source: a.Source}, nil
}

func (s *Step) validate() error {
	if s.Experiment == "" {
		return fmt.Errorf("missing experiment")
	}
	if s.Duration < 0 || s.FrameRate < 0 {
		return fmt.Errorf("negative duration or frame rate")
	}
	for i, a := range s.Actions {
		if _, err := a.Action(); err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
		if a.At < 0 {
			return fmt.Errorf("action %d: negative time", i+1)
		}
	}
	for i, b := range s.Squeeze {
		if b.At < 0 {
			return fmt.Errorf("squeeze %d: negative time", i+1)
		}
	}
	return nil
}

func (s *Step) sort() {
	slices.SortStableFunc(s.Actions, func(a, b TimedAction) int { return cmp.Compare(a.At, b.At) })
	slices.SortStableFunc(s.Squeeze, func(a, b BudgetChange) int { return cmp.Compare(a.At, b.At) })
}

func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", s.Name)
	}
	for i := range s.Steps {
		if err := s.Steps[i].validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	for i := range scenario.Steps {
		scenario.Steps[i].sort()
	}

	return &scenario, nil
}
