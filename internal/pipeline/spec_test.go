package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Message string        `mapstructure:"message"`
	Repeat  int           `mapstructure:"repeat"`
	Delay   time.Duration `mapstructure:"delay"`
}

func (p *echoParams) validate() error {
	if p.Repeat < 0 {
		return errors.New("repeat must not be negative")
	}
	return nil
}

func echoRegistry() *Registry {
	r := NewRegistry()
	r.Register("test", "echo", Bind(echoParams{Repeat: 1}, func(_ context.Context, p echoParams) (any, error) {
		return p, nil
	}))
	return r
}

func TestBind_DecodesOverDefaults(t *testing.T) {
	bind, ok := echoRegistry().Lookup("test", "echo")
	require.True(t, ok)

	run, err := bind(map[string]any{"message": "hi", "delay": "2s"})
	require.NoError(t, err)
	res, err := run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, echoParams{Message: "hi", Repeat: 1, Delay: 2 * time.Second}, res)
}

func TestBind_WeaklyTypedInput(t *testing.T) {
	bind, _ := echoRegistry().Lookup("test", "echo")
	run, err := bind(map[string]any{"repeat": "3"})
	require.NoError(t, err)
	res, err := run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.(echoParams).Repeat)
}

func TestBind_RejectsUnknownKeys(t *testing.T) {
	bind, _ := echoRegistry().Lookup("test", "echo")
	_, err := bind(map[string]any{"mesage": "typo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mesage")
}

func TestBind_RunsValidation(t *testing.T) {
	bind, _ := echoRegistry().Lookup("test", "echo")
	_, err := bind(map[string]any{"repeat": -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeat must not be negative")
}

func TestRegistry_RegisterTwicePanics(t *testing.T) {
	r := echoRegistry()
	assert.Panics(t, func() {
		r.Register("test", "echo", Bind(echoParams{}, func(context.Context, echoParams) (any, error) { return nil, nil }))
	})
	assert.Equal(t, []string{"test.echo"}, r.Names())
}

func TestParseSpec_Valid(t *testing.T) {
	spec, err := ParseSpec([]byte(`
steps:
  - name: first
    module: test
    function: echo
    params:
      message: one
  - name: second
    module: test
    function: echo
`), echoRegistry())
	require.NoError(t, err)
	require.Len(t, spec.Steps, 2)
	assert.Equal(t, "first", spec.Steps[0].Name)
	assert.Equal(t, "second", spec.Steps[1].Name)
}

func TestParseSpec_Empty(t *testing.T) {
	spec, err := ParseSpec(nil, echoRegistry())
	require.NoError(t, err)
	assert.Empty(t, spec.Steps)
}

func TestParseSpec_AggregatesErrors(t *testing.T) {
	_, err := ParseSpec([]byte(`
steps:
  - name: a
    module: test
    function: echo
  - name: a
    module: test
    function: echo
  - name: b
    module: data_generator
    function: nope
  - name: c
    module: test
    function: echo
    params:
      bogus: 1
  - module: test
    function: echo
`), echoRegistry())
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
	assert.ErrorIs(t, err, ErrDuplicateStep)
	assert.ErrorIs(t, err, ErrUnknownStep)
	assert.ErrorIs(t, err, ErrInvalidStep)
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, err.Error(), "data_generator.nope")
}

func TestParseSpec_UnknownTopLevelField(t *testing.T) {
	_, err := ParseSpec([]byte("stages: []\n"), echoRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stages")
}

func TestLoadSpec_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - {name: only, module: test, function: echo}\n"), 0o644))

	spec, err := LoadSpec(path, echoRegistry())
	require.NoError(t, err)
	assert.Equal(t, path, spec.Path)
	assert.Len(t, spec.Steps, 1)

	_, err = LoadSpec(filepath.Join(t.TempDir(), "missing.yaml"), echoRegistry())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
