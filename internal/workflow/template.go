package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// templateFile is the on-disk YAML shape of a template catalog.
type templateFile struct {
	Templates []templateSpec `yaml:"templates"`
}

type templateSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Metadata    map[string]any `yaml:"metadata"`
	Steps       []stepYAML     `yaml:"steps"`
}

type stepYAML struct {
	Type      string         `yaml:"type"`
	Role      string         `yaml:"role"`
	Input     map[string]any `yaml:"input"`
	DependsOn []string       `yaml:"depends_on"`
	Metadata  map[string]any `yaml:"metadata"`
}

// LoadTemplates reads a YAML template catalog and registers every
// template with the engine.
func LoadTemplates(e *Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading template file: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing template file %s: %w", path, err)
	}

	for _, spec := range file.Templates {
		if spec.Name == "" {
			return fmt.Errorf("template in %s has no name", path)
		}
		tpl := New(spec.Name, spec.Description, spec.Metadata)
		for _, s := range spec.Steps {
			tpl.AddStep(StepSpec{
				Type:      s.Type,
				Role:      s.Role,
				Input:     s.Input,
				DependsOn: s.DependsOn,
				Metadata:  s.Metadata,
			})
		}
		if err := tpl.Validate(); err != nil {
			return fmt.Errorf("template %q: %w", spec.Name, err)
		}
		e.RegisterTemplate(spec.Name, tpl)
	}
	return nil
}

// RegisterBuiltinTemplates registers the stock project-development and
// bug-fix workflow blueprints.
func RegisterBuiltinTemplates(e *Engine) {
	dev := New("project_development",
		"Full delivery pipeline from planning to monitoring", map[string]any{
			"category": "project_development",
		})
	dev.AddStep(StepSpec{
		Type: "create_plan",
		Role: "project_manager",
		Input: map[string]any{
			"requirements": "{{requirements}}",
			"timeline":     "{{timeline}}",
		},
		Metadata: map[string]any{"step_name": "project planning"},
	})
	dev.AddStep(StepSpec{
		Type: "design_architecture",
		Role: "architect",
		Input: map[string]any{
			"requirements": "{{requirements}}",
			"constraints":  "{{constraints}}",
		},
		DependsOn: []string{"step_1"},
		Metadata:  map[string]any{"step_name": "architecture design"},
	})
	dev.AddStep(StepSpec{
		Type: "implement_ui",
		Role: "frontend_engineer",
		Input: map[string]any{
			"design":       "{{step_2.result}}",
			"requirements": "{{requirements}}",
		},
		DependsOn: []string{"step_2"},
		Metadata:  map[string]any{"step_name": "frontend implementation"},
	})
	dev.AddStep(StepSpec{
		Type: "implement_api",
		Role: "backend_engineer",
		Input: map[string]any{
			"api_spec":     "{{step_2.result}}",
			"requirements": "{{requirements}}",
		},
		DependsOn: []string{"step_2"},
		Metadata:  map[string]any{"step_name": "backend implementation"},
	})
	dev.AddStep(StepSpec{
		Type:      "monitor_system",
		Role:      "devops_engineer",
		Input:     map[string]any{"metrics": map[string]any{}},
		DependsOn: []string{"step_3", "step_4"},
		Metadata:  map[string]any{"step_name": "system monitoring"},
	})
	e.RegisterTemplate("project_development", dev)

	bugfix := New("bug_fix",
		"From problem analysis to verified fix", map[string]any{
			"category": "maintenance",
		})
	bugfix.AddStep(StepSpec{
		Type: "solve_problem",
		Role: "architect",
		Input: map[string]any{
			"problem": "{{bug_description}}",
			"context": "{{context}}",
		},
		Metadata: map[string]any{"step_name": "problem analysis"},
	})
	bugfix.AddStep(StepSpec{
		Type: "fix_bug",
		Role: "frontend_engineer",
		Input: map[string]any{
			"bug_description": "{{bug_description}}",
			"analysis":        "{{step_1.result}}",
		},
		DependsOn: []string{"step_1"},
		Metadata:  map[string]any{"step_name": "fix implementation"},
	})
	e.RegisterTemplate("bug_fix", bugfix)
}
