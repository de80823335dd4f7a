package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// StepFunc runs one bound pipeline step and returns its result.
type StepFunc func(ctx context.Context) (any, error)

// Binder validates a step's params and returns the runnable step. It is
// called once per step when a spec is loaded.
type Binder func(params map[string]any) (StepFunc, error)

// Registry maps "module.function" names to binders.
type Registry struct {
	binders map[string]Binder
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{binders: make(map[string]Binder)}
}

// Register adds a binder. Registering the same name twice panics.
func (r *Registry) Register(module, function string, b Binder) {
	key := stepKey(module, function)
	if _, dup := r.binders[key]; dup {
		panic(fmt.Sprintf("pipeline: step %s registered twice", key))
	}
	r.binders[key] = b
}

// Lookup returns the binder for module.function.
func (r *Registry) Lookup(module, function string) (Binder, bool) {
	b, ok := r.binders[stepKey(module, function)]
	return b, ok
}

// Names lists registered steps in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.binders))
	for k := range r.binders {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func stepKey(module, function string) string {
	return module + "." + function
}

// validator is implemented by param structs with cross-field rules.
type validator interface {
	validate() error
}

// Bind builds a Binder that decodes params over defaults into P and calls fn
// with the result. Unknown keys and values of the wrong type are rejected.
func Bind[P any](defaults P, fn func(ctx context.Context, p P) (any, error)) Binder {
	return func(params map[string]any) (StepFunc, error) {
		p := defaults
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if v, ok := any(&p).(validator); ok {
			if err := v.validate(); err != nil {
				return nil, err
			}
		}
		return func(ctx context.Context) (any, error) {
			return fn(ctx, p)
		}, nil
	}
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}
