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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfigFile(t, "pipeline.yaml", `
pipeline:
  name: sensor-avg
  windowSizeMs: 60000
  watermark:
    policy: boundedOutOfOrderness
    allowedLatenessMs: 5000
  lateEventPolicy: drop
  extractionErrorPolicy: halt
  workers: 2
  readBatchSize: 100
  channelBufferSize: 50
  flushOnShutdown: false
aggregator: sensorstats
assigner:
  timestampField: timestamp
  keyField: id
source:
  kind: kafka
  kafka:
    brokers:
      - localhost:9092
    topic: readings
    consumerGroup: flowagg
sink:
  kind: redis
  redis:
    url: redis://localhost:6379
    ttlSeconds: 120
metricsAddr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sensor-avg", cfg.Pipeline.Name)
	assert.Equal(t, time.Minute, cfg.Pipeline.WindowSize())
	assert.Equal(t, WatermarkBoundedOutOfOrderness, cfg.Pipeline.Watermark.Policy)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Watermark.AllowedLateness())
	assert.Equal(t, "drop", cfg.Pipeline.LateEventPolicy)
	assert.Equal(t, "halt", cfg.Pipeline.ExtractionErrorPolicy)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, int64(100), cfg.Pipeline.ReadBatchSize)
	assert.Equal(t, 50, cfg.Pipeline.ChannelBufferSize)
	assert.False(t, cfg.Pipeline.FlushOnShutdown)
	assert.Equal(t, AggregatorSensorStats, cfg.Aggregator)
	assert.Equal(t, "timestamp", cfg.Assigner.TimestampField)
	assert.Equal(t, "id", cfg.Assigner.KeyField)
	assert.Equal(t, KindKafka, cfg.Source.Kind)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Source.Kafka.Brokers)
	assert.Equal(t, "readings", cfg.Source.Kafka.Topic)
	assert.Equal(t, "flowagg", cfg.Source.Kafka.ConsumerGroup)
	assert.Equal(t, KindRedis, cfg.Sink.Kind)
	assert.Equal(t, "redis://localhost:6379", cfg.Sink.Redis.URL)
	assert.Equal(t, 2*time.Minute, cfg.Sink.Redis.TTL())
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfigFile(t, "pipeline.json", `{
  "pipeline": {"name": "json-test", "windowSizeMs": 1000},
  "aggregator": "sensorstats"
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json-test", cfg.Pipeline.Name)
	assert.Equal(t, time.Second, cfg.Pipeline.WindowSize())
	assert.Equal(t, AggregatorSensorStats, cfg.Aggregator)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, "pipeline.yaml", `
pipeline:
  name: defaults-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(60000), cfg.Pipeline.WindowSizeMs)
	assert.Equal(t, WatermarkMonotonous, cfg.Pipeline.Watermark.Policy)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.Watermark.AllowedLateness())
	assert.Equal(t, "dropWithMetric", cfg.Pipeline.LateEventPolicy)
	assert.Equal(t, "drop", cfg.Pipeline.ExtractionErrorPolicy)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, int64(500), cfg.Pipeline.ReadBatchSize)
	assert.Equal(t, 100, cfg.Pipeline.ChannelBufferSize)
	assert.True(t, cfg.Pipeline.FlushOnShutdown)
	assert.Equal(t, AggregatorFlightStats, cfg.Aggregator)
	assert.Equal(t, KindGenerator, cfg.Source.Kind)
	assert.Equal(t, int64(5), cfg.Source.Generator.RPU)
	assert.Equal(t, time.Second, cfg.Source.Generator.Duration())
	assert.Equal(t, int32(10), cfg.Source.Generator.KeyCount)
	assert.Equal(t, KindLogger, cfg.Sink.Kind)
	assert.Equal(t, ":2469", cfg.MetricsAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "pipeline.yaml", `
pipeline:
  name: env-test
  workers: 2
`)
	t.Setenv("FLOWAGG_PIPELINE_WORKERS", "8")
	t.Setenv("FLOWAGG_METRICSADDR", ":7777")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, ":7777", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfigFile(t, "bad.yaml", "pipeline: [:::")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfigFile(t, "invalid.yaml", `
pipeline:
  name: bad
  windowSizeMs: -5
`)
		_, err := Load(path)
		var vErr ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "pipeline.windowSizeMs", vErr.Field)
	})
}

func validConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Name:                  "valid",
			WindowSizeMs:          60000,
			Watermark:             WatermarkConfig{Policy: WatermarkMonotonous},
			LateEventPolicy:       "dropWithMetric",
			ExtractionErrorPolicy: "drop",
			Workers:               4,
			ReadBatchSize:         500,
			ChannelBufferSize:     100,
		},
		Aggregator: AggregatorFlightStats,
		Source: SourceConfig{
			Kind:      KindGenerator,
			Generator: GeneratorSourceConfig{RPU: 5, DurationMs: 1000, KeyCount: 10},
		},
		Sink: SinkConfig{Kind: KindLogger},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "empty name",
			mutate:    func(c *Config) { c.Pipeline.Name = "" },
			wantField: "pipeline.name",
		},
		{
			name:      "zero window size",
			mutate:    func(c *Config) { c.Pipeline.WindowSizeMs = 0 },
			wantField: "pipeline.windowSizeMs",
		},
		{
			name:      "unknown watermark policy",
			mutate:    func(c *Config) { c.Pipeline.Watermark.Policy = "punctuated" },
			wantField: "pipeline.watermark.policy",
		},
		{
			name: "lateness with monotonous policy",
			mutate: func(c *Config) {
				c.Pipeline.Watermark.AllowedLatenessMs = 100
			},
			wantField: "pipeline.watermark.allowedLatenessMs",
		},
		{
			name: "negative lateness",
			mutate: func(c *Config) {
				c.Pipeline.Watermark.Policy = WatermarkBoundedOutOfOrderness
				c.Pipeline.Watermark.AllowedLatenessMs = -1
			},
			wantField: "pipeline.watermark.allowedLatenessMs",
		},
		{
			name:      "unknown late event policy",
			mutate:    func(c *Config) { c.Pipeline.LateEventPolicy = "sideOutput" },
			wantField: "pipeline.lateEventPolicy",
		},
		{
			name:      "unknown extraction policy",
			mutate:    func(c *Config) { c.Pipeline.ExtractionErrorPolicy = "retry" },
			wantField: "pipeline.extractionErrorPolicy",
		},
		{
			name:      "zero workers",
			mutate:    func(c *Config) { c.Pipeline.Workers = 0 },
			wantField: "pipeline.workers",
		},
		{
			name:      "zero read batch size",
			mutate:    func(c *Config) { c.Pipeline.ReadBatchSize = 0 },
			wantField: "pipeline.readBatchSize",
		},
		{
			name:      "unknown aggregator",
			mutate:    func(c *Config) { c.Aggregator = "wordcount" },
			wantField: "aggregator",
		},
		{
			name: "kafka source without topic",
			mutate: func(c *Config) {
				c.Source = SourceConfig{Kind: KindKafka, Kafka: KafkaSourceConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}}
			},
			wantField: "source.kafka.topic",
		},
		{
			name: "nats source without subject",
			mutate: func(c *Config) {
				c.Source = SourceConfig{Kind: KindNats, Nats: NatsSourceConfig{URL: "nats://localhost:4222", Queue: "q"}}
			},
			wantField: "source.nats.subject",
		},
		{
			name: "generator without rpu",
			mutate: func(c *Config) {
				c.Source.Generator.RPU = 0
			},
			wantField: "source.generator.rpu",
		},
		{
			name:      "unknown source kind",
			mutate:    func(c *Config) { c.Source.Kind = "http" },
			wantField: "source.kind",
		},
		{
			name: "kafka sink without brokers",
			mutate: func(c *Config) {
				c.Sink = SinkConfig{Kind: KindKafka, Kafka: KafkaSinkConfig{Topic: "out"}}
			},
			wantField: "sink.kafka.brokers",
		},
		{
			name: "redis sink with negative ttl",
			mutate: func(c *Config) {
				c.Sink = SinkConfig{Kind: KindRedis, Redis: RedisSinkConfig{URL: "redis://localhost:6379", TTLSeconds: -1}}
			},
			wantField: "sink.redis.ttlSeconds",
		},
		{
			name:      "unknown sink kind",
			mutate:    func(c *Config) { c.Sink.Kind = "blackhole" },
			wantField: "sink.kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr ValidationError
			require.True(t, errors.As(err, &vErr), "expected a ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
