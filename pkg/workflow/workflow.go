// Package workflow parses and validates the YAML documents that
// describe a pipeline: an ordered list of steps to run against a
// remote development environment, some of which are gated on human
// approval.
package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	KindAutomated = "automated"
	KindGated     = "gated"
)

type Definition struct {
	Name        string     `yaml:"name"`
	Environment string     `yaml:"environment"`
	Steps       []StepSpec `yaml:"steps"`
}

type StepSpec struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Command string `yaml:"command,omitempty"`
}

func Parse(yamlContent []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(yamlContent, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition is executable: at least one step,
// unique step names, a known kind per step, and a command on every
// automated step. Gated steps pause for approval and carry no command.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if d.Environment == "" {
		return fmt.Errorf("workflow environment is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow has no steps")
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		seen[step.Name] = struct{}{}
		switch step.Kind {
		case KindAutomated:
			if step.Command == "" {
				return fmt.Errorf("automated step %q has no command", step.Name)
			}
		case KindGated:
			if step.Command != "" {
				return fmt.Errorf("gated step %q cannot have a command", step.Name)
			}
		default:
			return fmt.Errorf("step %q has unknown kind %q", step.Name, step.Kind)
		}
	}
	return nil
}
