package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_Valid(t *testing.T) {
	path := writeYAML(t, `
steps:
  - name: sensors
    module: data_generator
    function: generate_sensor_readings
    params: {days: 3}
  - name: publish
    module: publisher
    function: publish_predictions
`)
	var out bytes.Buffer
	code := run(&config.Config{ArtifactsDir: t.TempDir()}, path, &out)

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "data_generator.generate_sensor_readings")
	assert.Contains(t, out.String(), "KAFKA_ENABLED is not true")
	assert.Contains(t, out.String(), "2 steps. All validations passed.")
}

func TestRun_ReportsEveryProblem(t *testing.T) {
	path := writeYAML(t, `
steps:
  - name: a
    module: nope
    function: missing
  - name: b
    module: etl
    function: run_etl
    params: {agg_freq: weekly}
`)
	var out bytes.Buffer
	code := run(&config.Config{ArtifactsDir: t.TempDir()}, path, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "[1]")
	assert.Contains(t, out.String(), "[2]")
	assert.Contains(t, out.String(), "Validation FAILED.")
}
