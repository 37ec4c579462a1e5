/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/flowagg/pkg/config"
)

func Test_Commands(t *testing.T) {
	t.Run("root execute", func(t *testing.T) {
		rootCmd.SetArgs([]string{"help"})
		assert.NotPanics(t, Execute)
	})

	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		Execute()
		output, _ := io.ReadAll(b)
		assert.Contains(t, string(output), "Available Commands")
	})

	t.Run("version", func(t *testing.T) {
		cmd := NewVersionCommand()
		b := bytes.NewBufferString("")
		cmd.SetOut(b)
		assert.NoError(t, cmd.Execute())
		output, _ := io.ReadAll(b)
		assert.Contains(t, string(output), "Version:")
	})

	t.Run("pipeline flags", func(t *testing.T) {
		cmd := NewPipelineCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "pipeline", cmd.Use)
		assert.Equal(t, "string", cmd.Flag("config").Value.Type())
	})

	t.Run("pipeline requires the config flag", func(t *testing.T) {
		cmd := NewPipelineCommand()
		cmd.SetArgs([]string{})
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		err := cmd.Execute()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config")
	})

	t.Run("pipeline with a missing config file", func(t *testing.T) {
		cmd := NewPipelineCommand()
		cmd.SetArgs([]string{"--config=/no/such/file.yaml"})
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		assert.Error(t, cmd.Execute())
	})
}

func Test_BuildAggregator(t *testing.T) {
	a, err := buildAggregator(config.AggregatorFlightStats)
	assert.NoError(t, err)
	assert.NotNil(t, a)
	a, err = buildAggregator(config.AggregatorSensorStats)
	assert.NoError(t, err)
	assert.NotNil(t, a)
	_, err = buildAggregator("nonono")
	assert.Error(t, err)
}

func Test_AssignerFields(t *testing.T) {
	cfg := &config.Config{Aggregator: config.AggregatorSensorStats}
	tsField, layout, keyField := assignerFields(cfg)
	assert.Equal(t, "timestamp", tsField)
	assert.Equal(t, "", layout)
	assert.Equal(t, "id", keyField)

	cfg = &config.Config{
		Aggregator: config.AggregatorFlightStats,
		Assigner: config.AssignerConfig{
			TimestampField:  "created_at",
			TimestampLayout: time.RFC3339,
		},
	}
	tsField, layout, keyField = assignerFields(cfg)
	assert.Equal(t, "created_at", tsField)
	assert.Equal(t, time.RFC3339, layout)
	assert.Equal(t, "email_address", keyField)
}

func Test_BuildSourceAndSink_Unrecognized(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.Kind = "nonono"
	_, err := buildSource(cfg)
	assert.Error(t, err)
	cfg.Sink.Kind = "nonono"
	_, err = buildSink(cfg)
	assert.Error(t, err)
}

// Test_RunPipeline runs a short generator to logger pipeline and stops it.
func Test_RunPipeline(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
pipeline:
  name: cmd-test
  windowSizeMs: 1000
aggregator: flightstats
source:
  kind: generator
  generator:
    rpu: 10
    durationMs: 10
    keyCount: 2
sink:
  kind: logger
metricsAddr: "127.0.0.1:0"
`
	assert.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0600))
	cfg, err := config.Load(configPath)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runPipeline(ctx, cfg) }()

	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("the pipeline did not stop in time")
	}
}
