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

// Package config loads and validates the pipeline configuration from a YAML
// or JSON file, with FLOWAGG_ prefixed environment variables taking
// precedence over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Watermark policies.
const (
	WatermarkMonotonous            = "monotonous"
	WatermarkBoundedOutOfOrderness = "boundedOutOfOrderness"
)

// Builtin aggregators.
const (
	AggregatorFlightStats = "flightstats"
	AggregatorSensorStats = "sensorstats"
)

// Source and sink kinds.
const (
	KindKafka     = "kafka"
	KindNats      = "nats"
	KindGenerator = "generator"
	KindLogger    = "logger"
	KindRedis     = "redis"
)

// WatermarkConfig selects the watermark policy of the pipeline.
type WatermarkConfig struct {
	// Policy is monotonous or boundedOutOfOrderness.
	Policy string `json:"policy" mapstructure:"policy"`
	// AllowedLatenessMs is how far the watermark trails the max observed
	// event time. Only meaningful with the boundedOutOfOrderness policy.
	AllowedLatenessMs int64 `json:"allowedLatenessMs" mapstructure:"allowedLatenessMs"`
}

// AllowedLateness returns the lateness as a duration, zero for the
// monotonous policy.
func (w WatermarkConfig) AllowedLateness() time.Duration {
	if w.Policy == WatermarkMonotonous {
		return 0
	}
	return time.Duration(w.AllowedLatenessMs) * time.Millisecond
}

// PipelineConfig is the windowing and processing section.
type PipelineConfig struct {
	Name                  string          `json:"name" mapstructure:"name"`
	WindowSizeMs          int64           `json:"windowSizeMs" mapstructure:"windowSizeMs"`
	Watermark             WatermarkConfig `json:"watermark" mapstructure:"watermark"`
	LateEventPolicy       string          `json:"lateEventPolicy" mapstructure:"lateEventPolicy"`
	ExtractionErrorPolicy string          `json:"extractionErrorPolicy" mapstructure:"extractionErrorPolicy"`
	Workers               int             `json:"workers" mapstructure:"workers"`
	ReadBatchSize         int64           `json:"readBatchSize" mapstructure:"readBatchSize"`
	ChannelBufferSize     int             `json:"channelBufferSize" mapstructure:"channelBufferSize"`
	FlushOnShutdown       bool            `json:"flushOnShutdown" mapstructure:"flushOnShutdown"`
}

// WindowSize returns the window length as a duration.
func (p PipelineConfig) WindowSize() time.Duration {
	return time.Duration(p.WindowSizeMs) * time.Millisecond
}

// AssignerConfig names the payload fields carrying the event time and the
// key. Empty fields fall back to the defaults of the chosen aggregator.
type AssignerConfig struct {
	TimestampField  string `json:"timestampField" mapstructure:"timestampField"`
	TimestampLayout string `json:"timestampLayout" mapstructure:"timestampLayout"`
	KeyField        string `json:"keyField" mapstructure:"keyField"`
}

// KafkaSourceConfig configures the sarama consumer group source.
type KafkaSourceConfig struct {
	Brokers       []string `json:"brokers" mapstructure:"brokers"`
	Topic         string   `json:"topic" mapstructure:"topic"`
	ConsumerGroup string   `json:"consumerGroup" mapstructure:"consumerGroup"`
	// Config is an optional sarama configuration in YAML form.
	Config string `json:"config" mapstructure:"config"`
}

// NatsSourceConfig configures the NATS queue subscriber source.
type NatsSourceConfig struct {
	URL     string `json:"url" mapstructure:"url"`
	Subject string `json:"subject" mapstructure:"subject"`
	Queue   string `json:"queue" mapstructure:"queue"`
}

// GeneratorSourceConfig configures the synthetic record generator.
type GeneratorSourceConfig struct {
	// RPU is the number of records generated per time unit.
	RPU int64 `json:"rpu" mapstructure:"rpu"`
	// DurationMs is the time unit of RPU in milliseconds.
	DurationMs int64 `json:"durationMs" mapstructure:"durationMs"`
	// KeyCount is the number of distinct keys generated.
	KeyCount int32 `json:"keyCount" mapstructure:"keyCount"`
	// Jitter adds random backdating to event times, in milliseconds.
	JitterMs int64 `json:"jitterMs" mapstructure:"jitterMs"`
}

// Duration returns the generator time unit.
func (g GeneratorSourceConfig) Duration() time.Duration {
	return time.Duration(g.DurationMs) * time.Millisecond
}

// Jitter returns the generator event-time jitter.
func (g GeneratorSourceConfig) Jitter() time.Duration {
	return time.Duration(g.JitterMs) * time.Millisecond
}

// SourceConfig selects and configures the source of the pipeline.
type SourceConfig struct {
	Kind      string                `json:"kind" mapstructure:"kind"`
	Kafka     KafkaSourceConfig     `json:"kafka" mapstructure:"kafka"`
	Nats      NatsSourceConfig      `json:"nats" mapstructure:"nats"`
	Generator GeneratorSourceConfig `json:"generator" mapstructure:"generator"`
}

// KafkaSinkConfig configures the sarama sync producer sink.
type KafkaSinkConfig struct {
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
	// Config is an optional sarama configuration in YAML form.
	Config string `json:"config" mapstructure:"config"`
}

// RedisSinkConfig configures the redis sink.
type RedisSinkConfig struct {
	URL string `json:"url" mapstructure:"url"`
	// TTLSeconds expires written results, zero keeps them forever.
	TTLSeconds int64 `json:"ttlSeconds" mapstructure:"ttlSeconds"`
}

// TTL returns the expiry of written results.
func (r RedisSinkConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// SinkConfig selects and configures the sink of the pipeline.
type SinkConfig struct {
	Kind  string          `json:"kind" mapstructure:"kind"`
	Kafka KafkaSinkConfig `json:"kafka" mapstructure:"kafka"`
	Redis RedisSinkConfig `json:"redis" mapstructure:"redis"`
}

// Config is the whole configuration surface of a pipeline instance.
type Config struct {
	Pipeline    PipelineConfig `json:"pipeline" mapstructure:"pipeline"`
	Aggregator  string         `json:"aggregator" mapstructure:"aggregator"`
	Assigner    AssignerConfig `json:"assigner" mapstructure:"assigner"`
	Source      SourceConfig   `json:"source" mapstructure:"source"`
	Sink        SinkConfig     `json:"sink" mapstructure:"sink"`
	MetricsAddr string         `json:"metricsAddr" mapstructure:"metricsAddr"`
}

// ValidationError names the config field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Load reads the configuration from the given file. The format follows the
// file extension (.yaml, .yml or .json). FLOWAGG_ prefixed environment
// variables override file values, nested keys joined with underscores
// (FLOWAGG_PIPELINE_WORKERS overrides pipeline.workers).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.SetEnvPrefix("FLOWAGG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %q, %w", path, err)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "flowagg")
	v.SetDefault("pipeline.windowSizeMs", 60000)
	v.SetDefault("pipeline.watermark.policy", WatermarkMonotonous)
	v.SetDefault("pipeline.watermark.allowedLatenessMs", 0)
	v.SetDefault("pipeline.lateEventPolicy", "dropWithMetric")
	v.SetDefault("pipeline.extractionErrorPolicy", "drop")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.readBatchSize", 500)
	v.SetDefault("pipeline.channelBufferSize", 100)
	v.SetDefault("pipeline.flushOnShutdown", true)
	v.SetDefault("aggregator", AggregatorFlightStats)
	v.SetDefault("source.kind", KindGenerator)
	v.SetDefault("source.generator.rpu", 5)
	v.SetDefault("source.generator.durationMs", 1000)
	v.SetDefault("source.generator.keyCount", 10)
	v.SetDefault("source.generator.jitterMs", 0)
	v.SetDefault("sink.kind", KindLogger)
	v.SetDefault("metricsAddr", ":2469")
}

// Validate checks the cross-field constraints the type system cannot.
func (c *Config) Validate() error {
	if c.Pipeline.Name == "" {
		return ValidationError{Field: "pipeline.name", Message: "must not be empty"}
	}
	if c.Pipeline.WindowSizeMs <= 0 {
		return ValidationError{Field: "pipeline.windowSizeMs", Message: "must be greater than zero"}
	}
	switch c.Pipeline.Watermark.Policy {
	case WatermarkMonotonous:
		if c.Pipeline.Watermark.AllowedLatenessMs != 0 {
			return ValidationError{Field: "pipeline.watermark.allowedLatenessMs", Message: "must be zero with the monotonous policy"}
		}
	case WatermarkBoundedOutOfOrderness:
		if c.Pipeline.Watermark.AllowedLatenessMs < 0 {
			return ValidationError{Field: "pipeline.watermark.allowedLatenessMs", Message: "must not be negative"}
		}
	default:
		return ValidationError{Field: "pipeline.watermark.policy", Message: fmt.Sprintf("unknown policy %q", c.Pipeline.Watermark.Policy)}
	}
	switch c.Pipeline.LateEventPolicy {
	case "drop", "dropWithMetric":
	default:
		return ValidationError{Field: "pipeline.lateEventPolicy", Message: fmt.Sprintf("unknown policy %q", c.Pipeline.LateEventPolicy)}
	}
	switch c.Pipeline.ExtractionErrorPolicy {
	case "drop", "halt":
	default:
		return ValidationError{Field: "pipeline.extractionErrorPolicy", Message: fmt.Sprintf("unknown policy %q", c.Pipeline.ExtractionErrorPolicy)}
	}
	if c.Pipeline.Workers <= 0 {
		return ValidationError{Field: "pipeline.workers", Message: "must be greater than zero"}
	}
	if c.Pipeline.ReadBatchSize <= 0 {
		return ValidationError{Field: "pipeline.readBatchSize", Message: "must be greater than zero"}
	}
	if c.Pipeline.ChannelBufferSize <= 0 {
		return ValidationError{Field: "pipeline.channelBufferSize", Message: "must be greater than zero"}
	}
	switch c.Aggregator {
	case AggregatorFlightStats, AggregatorSensorStats:
	default:
		return ValidationError{Field: "aggregator", Message: fmt.Sprintf("unknown aggregator %q", c.Aggregator)}
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	return c.validateSink()
}

func (c *Config) validateSource() error {
	switch c.Source.Kind {
	case KindKafka:
		if len(c.Source.Kafka.Brokers) == 0 {
			return ValidationError{Field: "source.kafka.brokers", Message: "must not be empty"}
		}
		if c.Source.Kafka.Topic == "" {
			return ValidationError{Field: "source.kafka.topic", Message: "must not be empty"}
		}
		if c.Source.Kafka.ConsumerGroup == "" {
			return ValidationError{Field: "source.kafka.consumerGroup", Message: "must not be empty"}
		}
	case KindNats:
		if c.Source.Nats.URL == "" {
			return ValidationError{Field: "source.nats.url", Message: "must not be empty"}
		}
		if c.Source.Nats.Subject == "" {
			return ValidationError{Field: "source.nats.subject", Message: "must not be empty"}
		}
		if c.Source.Nats.Queue == "" {
			return ValidationError{Field: "source.nats.queue", Message: "must not be empty"}
		}
	case KindGenerator:
		if c.Source.Generator.RPU <= 0 {
			return ValidationError{Field: "source.generator.rpu", Message: "must be greater than zero"}
		}
		if c.Source.Generator.DurationMs <= 0 {
			return ValidationError{Field: "source.generator.durationMs", Message: "must be greater than zero"}
		}
		if c.Source.Generator.KeyCount <= 0 {
			return ValidationError{Field: "source.generator.keyCount", Message: "must be greater than zero"}
		}
	default:
		return ValidationError{Field: "source.kind", Message: fmt.Sprintf("unknown source %q", c.Source.Kind)}
	}
	return nil
}

func (c *Config) validateSink() error {
	switch c.Sink.Kind {
	case KindKafka:
		if len(c.Sink.Kafka.Brokers) == 0 {
			return ValidationError{Field: "sink.kafka.brokers", Message: "must not be empty"}
		}
		if c.Sink.Kafka.Topic == "" {
			return ValidationError{Field: "sink.kafka.topic", Message: "must not be empty"}
		}
	case KindRedis:
		if c.Sink.Redis.URL == "" {
			return ValidationError{Field: "sink.redis.url", Message: "must not be empty"}
		}
		if c.Sink.Redis.TTLSeconds < 0 {
			return ValidationError{Field: "sink.redis.ttlSeconds", Message: "must not be negative"}
		}
	case KindLogger:
	default:
		return ValidationError{Field: "sink.kind", Message: fmt.Sprintf("unknown sink %q", c.Sink.Kind)}
	}
	return nil
}
