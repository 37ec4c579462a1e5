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
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/numaproj/flowagg"
	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/aggregate/flightstats"
	"github.com/numaproj/flowagg/pkg/aggregate/sensorstats"
	"github.com/numaproj/flowagg/pkg/assign"
	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/reduce"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	sharedutil "github.com/numaproj/flowagg/pkg/shared/util"
	kafkasink "github.com/numaproj/flowagg/pkg/sinks/kafka"
	"github.com/numaproj/flowagg/pkg/sinks/logger"
	redissink "github.com/numaproj/flowagg/pkg/sinks/redis"
	"github.com/numaproj/flowagg/pkg/sources/generator"
	kafkasource "github.com/numaproj/flowagg/pkg/sources/kafka"
	natssource "github.com/numaproj/flowagg/pkg/sources/nats"
	"github.com/numaproj/flowagg/pkg/stream"
	"github.com/numaproj/flowagg/pkg/watermark"
	"github.com/numaproj/flowagg/pkg/window"
	"github.com/numaproj/flowagg/pkg/window/strategy/fixed"
)

func NewPipelineCommand() *cobra.Command {
	var configFile string

	command := &cobra.Command{
		Use:   "pipeline",
		Short: "Start an aggregation pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("pipeline")
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			log = log.With("pipeline", cfg.Pipeline.Name)
			log.Infow("Starting the aggregation pipeline", "version", flowagg.GetVersion())
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipeline(logging.WithLogger(ctx, log), cfg)
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "Path to the pipeline configuration file")
	_ = command.MarkFlagRequired("config")
	return command
}

func runPipeline(ctx context.Context, cfg *config.Config) error {
	log := logging.FromContext(ctx)

	aggregator, err := buildAggregator(cfg.Aggregator)
	if err != nil {
		return err
	}
	timestampField, timestampLayout, keyField := assignerFields(cfg)
	timestampAssigner := assign.NewJSONTimestampAssigner(timestampField, timestampLayout)
	keyExtractor := assign.NewJSONKeyExtractor(keyField)

	fromBuffer, err := buildSource(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = fromBuffer.Close() }()

	toBuffer, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = toBuffer.Close() }()

	tracker := watermark.NewTracker(watermark.WithDelay(cfg.Pipeline.Watermark.AllowedLateness()))

	df, err := reduce.NewDataForward(ctx, cfg.Pipeline.Name, fromBuffer, toBuffer,
		func() window.Windower { return fixed.NewFixed(cfg.Pipeline.WindowSize()) },
		aggregator, timestampAssigner, keyExtractor, tracker,
		reduce.WithReadBatchSize(cfg.Pipeline.ReadBatchSize),
		reduce.WithWorkers(cfg.Pipeline.Workers),
		reduce.WithChannelBufferSize(cfg.Pipeline.ChannelBufferSize),
		reduce.WithLateEventPolicy(reduce.LateEventPolicy(cfg.Pipeline.LateEventPolicy)),
		reduce.WithExtractionErrorPolicy(reduce.ExtractionErrorPolicy(cfg.Pipeline.ExtractionErrorPolicy)),
		reduce.WithFlushOnShutdown(cfg.Pipeline.FlushOnShutdown))
	if err != nil {
		return err
	}

	var healthCheckers []metrics.HealthChecker
	if hc, ok := fromBuffer.(metrics.HealthChecker); ok {
		healthCheckers = append(healthCheckers, hc)
	}
	if hc, ok := toBuffer.(metrics.HealthChecker); ok {
		healthCheckers = append(healthCheckers, hc)
	}
	metricsOpts := metrics.NewMetricsOptions(ctx, healthCheckers, []stream.LagReader{fromBuffer})
	metricsOpts = append(metricsOpts, metrics.WithAddress(cfg.MetricsAddr))
	metricsOpts = append(metricsOpts, metrics.WithLookbackSeconds(int64(sharedutil.LookupEnvIntOr("FLOWAGG_LOOKBACK_SECONDS", metrics.DefaultLookbackSeconds))))
	ms := metrics.NewMetricsServer(cfg.Pipeline.Name, metricsOpts...)
	shutdown, err := ms.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start the metrics server, %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	// a termination signal stops the pipeline cleanly so the open windows can
	// still be flushed
	go func() {
		<-ctx.Done()
		log.Info("Received a termination signal, stopping the pipeline")
		df.Stop()
	}()

	return df.Start(logging.WithLogger(context.Background(), log))
}

func buildAggregator(kind string) (aggregate.AggregateFunction, error) {
	switch kind {
	case config.AggregatorFlightStats:
		return flightstats.NewAggregator(), nil
	case config.AggregatorSensorStats:
		return sensorstats.NewAggregator(), nil
	default:
		return nil, fmt.Errorf("unrecognized aggregator %q", kind)
	}
}

// assignerFields resolves the assigner configuration, falling back to the
// field names of the selected aggregator's record shape.
func assignerFields(cfg *config.Config) (string, string, string) {
	timestampField := cfg.Assigner.TimestampField
	keyField := cfg.Assigner.KeyField
	defaultTimestampField, defaultKeyField := aggregatorFields(cfg.Aggregator)
	if timestampField == "" {
		timestampField = defaultTimestampField
	}
	if keyField == "" {
		keyField = defaultKeyField
	}
	return timestampField, cfg.Assigner.TimestampLayout, keyField
}

func aggregatorFields(kind string) (string, string) {
	if kind == config.AggregatorSensorStats {
		return sensorstats.TimestampField, sensorstats.KeyField
	}
	return flightstats.TimestampField, flightstats.KeyField
}

func recordFactory(kind string) generator.RecordFactory {
	if kind == config.AggregatorSensorStats {
		return generator.SensorRecords()
	}
	return generator.FlightRecords()
}

func buildSource(cfg *config.Config) (stream.BufferReader, error) {
	pipelineName := cfg.Pipeline.Name
	switch cfg.Source.Kind {
	case config.KindKafka:
		src, err := kafkasource.NewKafkaSource(pipelineName, cfg.Source.Kafka)
		if err != nil {
			return nil, err
		}
		if err := src.Start(); err != nil {
			return nil, err
		}
		return src, nil
	case config.KindNats:
		src, err := natssource.NewNatsSource(pipelineName, cfg.Source.Nats)
		if err != nil {
			return nil, err
		}
		if err := src.Start(); err != nil {
			return nil, err
		}
		return src, nil
	case config.KindGenerator:
		src, err := generator.NewMemGen(pipelineName, cfg.Source.Generator, recordFactory(cfg.Aggregator))
		if err != nil {
			return nil, err
		}
		if err := src.Start(); err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unrecognized source kind %q", cfg.Source.Kind)
	}
}

func buildSink(cfg *config.Config) (stream.BufferWriter, error) {
	pipelineName := cfg.Pipeline.Name
	switch cfg.Sink.Kind {
	case config.KindKafka:
		sink, err := kafkasink.NewToKafka(pipelineName, cfg.Sink.Kafka)
		if err != nil {
			return nil, err
		}
		if err := sink.Start(); err != nil {
			return nil, err
		}
		return sink, nil
	case config.KindRedis:
		return redissink.NewRedisSink(pipelineName, cfg.Sink.Redis)
	case config.KindLogger:
		return logger.NewToLog(pipelineName)
	default:
		return nil, fmt.Errorf("unrecognized sink kind %q", cfg.Sink.Kind)
	}
}
