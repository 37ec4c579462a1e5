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

// Package kafka implements a stream.BufferWriter producing to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	sharedutil "github.com/numaproj/flowagg/pkg/shared/util"
	"github.com/numaproj/flowagg/pkg/stream"
)

// ToKafka produces the results to a kafka topic.
type ToKafka struct {
	name         string
	pipelineName string
	producer     sarama.SyncProducer
	topic        string
	brokers      []string
	config       *sarama.Config
	concurrency  uint32
	log          *zap.SugaredLogger
}

var _ stream.BufferWriter = (*ToKafka)(nil)

type Option func(*ToKafka) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) error {
		t.log = log
		return nil
	}
}

// WithConcurrency sets the number of concurrent producer workers.
func WithConcurrency(c uint32) Option {
	return func(t *ToKafka) error {
		if c == 0 {
			return fmt.Errorf("concurrency should be greater than 0")
		}
		t.concurrency = c
		return nil
	}
}

type sinkMessage struct {
	index   int
	message *sarama.ProducerMessage
}

// NewToKafka returns a ToKafka for the given configuration. The producer is
// created when Start is called.
func NewToKafka(pipelineName string, c config.KafkaSinkConfig, opts ...Option) (*ToKafka, error) {
	toKafka := &ToKafka{
		name:         fmt.Sprintf("kafka-sink-%s", c.Topic),
		pipelineName: pipelineName,
		topic:        c.Topic,
		brokers:      c.Brokers,
		concurrency:  1,
		log:          logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(toKafka); err != nil {
			return nil, err
		}
	}
	toKafka.log = toKafka.log.With("sinkType", "kafka").With("topic", c.Topic)
	saramaConfig, err := sharedutil.GetSaramaConfigFromYAMLString(c.Config)
	if err != nil {
		return nil, fmt.Errorf("error reading kafka sink config, %w", err)
	}
	toKafka.config = saramaConfig
	return toKafka, nil
}

// Start connects the producer to the brokers.
func (tk *ToKafka) Start() error {
	producer, err := sarama.NewSyncProducer(tk.brokers, tk.config)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer, %w", err)
	}
	tk.producer = producer
	return nil
}

// GetName returns the name.
func (tk *ToKafka) GetName() string {
	return tk.name
}

// Write writes to the kafka topic. The result key rides along as the kafka
// message key so downstream consumers keep the per-key ordering.
func (tk *ToKafka) Write(_ context.Context, messages []stream.Message) ([]stream.Offset, []error) {
	errs := make([]error, len(messages))
	wg := new(sync.WaitGroup)

	sinkCh := make(chan *sinkMessage)
	for i := uint32(0); i < tk.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for message := range sinkCh {
				_, _, err := tk.producer.SendMessage(message.message)
				if err != nil {
					kafkaSinkWriteErrors.With(map[string]string{metrics.LabelPipeline: tk.pipelineName, "sink": tk.name}).Inc()
					tk.log.Errorw("SendMessage failed", zap.Error(err))
				} else {
					kafkaSinkWriteCount.With(map[string]string{metrics.LabelPipeline: tk.pipelineName, "sink": tk.name}).Inc()
				}
				// keep error in message index
				errs[message.index] = err
			}
		}()
	}
	for idx, message := range messages {
		m := &sarama.ProducerMessage{
			Topic: tk.topic,
			Value: sarama.ByteEncoder(message.Payload),
		}
		if message.Key != "" {
			m.Key = sarama.StringEncoder(message.Key)
		}
		sinkCh <- &sinkMessage{index: idx, message: m}
	}
	close(sinkCh)
	wg.Wait()
	return nil, errs
}

func (tk *ToKafka) Close() error {
	tk.log.Info("Closing kafka producer...")
	if tk.producer == nil {
		return nil
	}
	return tk.producer.Close()
}
