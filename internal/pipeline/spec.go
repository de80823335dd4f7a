package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownStep means no binder is registered for a step's module.function.
	ErrUnknownStep = errors.New("unknown step")
	// ErrDuplicateStep means two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")
	// ErrInvalidStep means a step is missing its name, module, or function.
	ErrInvalidStep = errors.New("invalid step")
)

// StepSpec is one entry of the YAML step list.
type StepSpec struct {
	Name     string         `yaml:"name"`
	Module   string         `yaml:"module"`
	Function string         `yaml:"function"`
	Params   map[string]any `yaml:"params"`
}

type document struct {
	Steps []StepSpec `yaml:"steps"`
}

// Step is a validated StepSpec bound to its implementation.
type Step struct {
	StepSpec
	run StepFunc
}

// Spec is an ordered, fully bound step list.
type Spec struct {
	Path  string
	Steps []Step
}

// LoadSpec reads and validates the YAML pipeline at path.
func LoadSpec(path string, reg *Registry) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline %s: %w", path, err)
	}
	spec, err := ParseSpec(data, reg)
	if err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", path, err)
	}
	spec.Path = path
	return spec, nil
}

// ParseSpec decodes a YAML step list and binds every step against reg.
// Every invalid step is reported, not only the first.
func ParseSpec(data []byte, reg *Registry) (*Spec, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var result *multierror.Error
	spec := &Spec{Steps: make([]Step, 0, len(doc.Steps))}
	seen := make(map[string]bool, len(doc.Steps))
	for i, s := range doc.Steps {
		if s.Name == "" || s.Module == "" || s.Function == "" {
			result = multierror.Append(result, fmt.Errorf("step %d: %w: name, module and function are required", i+1, ErrInvalidStep))
			continue
		}
		if seen[s.Name] {
			result = multierror.Append(result, fmt.Errorf("step %q: %w", s.Name, ErrDuplicateStep))
			continue
		}
		seen[s.Name] = true

		bind, ok := reg.Lookup(s.Module, s.Function)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("step %q: %w %s", s.Name, ErrUnknownStep, stepKey(s.Module, s.Function)))
			continue
		}
		run, err := bind(s.Params)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("step %q params: %w", s.Name, err))
			continue
		}
		spec.Steps = append(spec.Steps, Step{StepSpec: s, run: run})
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return spec, nil
}
