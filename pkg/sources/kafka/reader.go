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

// Package kafka implements a stream.BufferReader on top of a Kafka consumer
// group. Claimed messages flow through a handler channel; Read drains that
// channel and Ack commits the offsets back to the group.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	sharedutil "github.com/numaproj/flowagg/pkg/shared/util"
	"github.com/numaproj/flowagg/pkg/stream"
)

// KafkaSource is a Kafka consumer group backed source.
type KafkaSource struct {
	// name of the source
	name string
	// name of the pipeline
	pipelineName string
	// consumer group name
	groupName string
	// topic to consume messages from
	topic string
	// kafka brokers
	brokers []string
	// sarama config for the consumer group
	config *sarama.Config
	// handler for a kafka consumer group
	handler *consumerHandler
	// size of the channel that holds consumed but yet to be read messages
	handlerBuffer int
	// read timeout for the Read call
	readTimeout time.Duration
	// client used to calculate pending messages
	adminClient sarama.ClusterAdmin
	// sarama client
	saramaClient sarama.Client
	// lifecycle context, canceled on Close
	lifecycleCtx context.Context
	cancelFn     context.CancelFunc
	// closed once the consumer loops have fully stopped
	stopCh chan struct{}
	logger *zap.SugaredLogger
}

var _ stream.BufferReader = (*KafkaSource)(nil)

// NewKafkaSource returns a KafkaSource for the given configuration. No
// connection is made until Start is called.
func NewKafkaSource(pipelineName string, c config.KafkaSourceConfig, opts ...Option) (*KafkaSource, error) {
	kafkaSource := &KafkaSource{
		name:          fmt.Sprintf("kafka-source-%s", c.Topic),
		pipelineName:  pipelineName,
		groupName:     c.ConsumerGroup,
		topic:         c.Topic,
		brokers:       c.Brokers,
		readTimeout:   1 * time.Second, // default timeout
		handlerBuffer: 100,             // default buffer size for kafka reads
		logger:        logging.NewLogger(),
	}

	for _, o := range opts {
		if err := o(kafkaSource); err != nil {
			return nil, err
		}
	}

	saramaConfig, err := configFromYAML(c.Config)
	if err != nil {
		return nil, fmt.Errorf("error reading kafka source config, %w", err)
	}
	// return errors from the underlying kafka client using the Errors channel
	saramaConfig.Consumer.Return.Errors = true
	kafkaSource.config = saramaConfig

	sarama.Logger = zap.NewStdLog(kafkaSource.logger.Desugar())

	ctx, cancel := context.WithCancel(context.Background())
	kafkaSource.lifecycleCtx = ctx
	kafkaSource.cancelFn = cancel
	kafkaSource.stopCh = make(chan struct{})
	kafkaSource.handler = newConsumerHandler(kafkaSource.handlerBuffer)

	return kafkaSource, nil
}

func (r *KafkaSource) GetName() string {
	return r.name
}

// Start connects to the brokers and starts consuming. It returns once the
// consumer group session is set up and messages can be read.
func (r *KafkaSource) Start() error {
	client, err := sarama.NewClient(r.brokers, r.config)
	if err != nil {
		return fmt.Errorf("failed to create sarama client, %w", err)
	}
	r.saramaClient = client

	adminClient, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		if !client.Closed() {
			_ = client.Close()
		}
		return fmt.Errorf("failed to create sarama cluster admin client, %w", err)
	}
	r.adminClient = adminClient

	go r.startConsumer()
	// wait for the consumer to setup.
	<-r.handler.ready
	r.logger.Info("Consumer ready. Starting kafka reader...")
	return nil
}

func (r *KafkaSource) Read(_ context.Context, count int64) ([]*stream.ReadMessage, error) {
	msgs := make([]*stream.ReadMessage, 0, count)
	timeout := time.After(r.readTimeout)
loop:
	for i := int64(0); i < count; i++ {
		select {
		case m := <-r.handler.messages:
			kafkaSourceReadCount.With(map[string]string{metrics.LabelPipeline: r.pipelineName, "source": r.name}).Inc()
			msgs = append(msgs, toReadMessage(m))
		case <-timeout:
			// log that timeout has happened and don't return an error
			r.logger.Debugw("Timed out waiting for messages to read.", zap.Duration("waited", r.readTimeout))
			break loop
		}
	}
	return msgs, nil
}

// Ack commits the offsets back to the consumer group. The commit itself is
// asynchronous, marking is enough for at-least-once.
func (r *KafkaSource) Ack(_ context.Context, offsets []stream.Offset) []error {
	// block the handler cleanup while acks are inflight
	r.handler.inflightAcks = make(chan struct{})
	defer close(r.handler.inflightAcks)

	for _, offset := range offsets {
		kOffset, ok := offset.(*kafkaOffset)
		if !ok {
			kafkaSourceOffsetAckErrors.With(map[string]string{metrics.LabelPipeline: r.pipelineName, "source": r.name}).Inc()
			r.logger.Errorw("Not a kafka offset, skipping and continuing", zap.String("offset", offset.String()))
			continue
		}
		// mark the offset of the next message to read
		r.handler.sess.MarkOffset(kOffset.Topic(), kOffset.PartitionIdx(), kOffset.offset+1, "")
		kafkaSourceAckCount.With(map[string]string{metrics.LabelPipeline: r.pipelineName, "source": r.name}).Inc()
	}
	return make([]error, len(offsets))
}

// NoAck is a no-op, unread messages are redelivered by the group on restart.
func (r *KafkaSource) NoAck(_ context.Context, _ []stream.Offset) {}

func (r *KafkaSource) Close() error {
	r.logger.Info("Closing kafka reader...")
	r.cancelFn()
	if r.adminClient != nil {
		// closes the underlying sarama client as well.
		if err := r.adminClient.Close(); err != nil {
			r.logger.Errorw("Error in closing kafka admin client", zap.Error(err))
		}
	}
	<-r.stopCh
	r.logger.Info("Kafka reader closed")
	return nil
}

// Pending returns the consumer group lag summed over the topic partitions.
func (r *KafkaSource) Pending(_ context.Context) (int64, error) {
	if r.adminClient == nil || r.saramaClient == nil {
		return stream.PendingNotAvailable, nil
	}
	partitions, err := r.saramaClient.Partitions(r.topic)
	if err != nil {
		return stream.PendingNotAvailable, fmt.Errorf("failed to get partitions, %w", err)
	}
	totalPending := int64(0)
	rep, err := r.adminClient.ListConsumerGroupOffsets(r.groupName, map[string][]int32{r.topic: partitions})
	if err != nil {
		if refreshErr := r.refreshAdminClient(); refreshErr != nil {
			return stream.PendingNotAvailable, fmt.Errorf("failed to update the admin client, %w", refreshErr)
		}
		return stream.PendingNotAvailable, fmt.Errorf("failed to list consumer group offsets, %w", err)
	}
	for _, partition := range partitions {
		block := rep.GetBlock(r.topic, partition)
		if block.Offset == -1 {
			// no offset for the partition under the group usually means no data
			// was published to the partition yet, skip it
			continue
		}
		partitionOffset, err := r.saramaClient.GetOffset(r.topic, partition, sarama.OffsetNewest)
		if err != nil {
			return stream.PendingNotAvailable, fmt.Errorf("failed to get offset of topic %q, partition %v, %w", r.topic, partition, err)
		}
		totalPending += partitionOffset - block.Offset
	}
	kafkaPending.WithLabelValues(r.pipelineName, r.topic, r.groupName).Set(float64(totalPending))
	return totalPending, nil
}

// refreshAdminClient refreshes the admin client
func (r *KafkaSource) refreshAdminClient() error {
	if _, err := r.saramaClient.RefreshController(); err != nil {
		return fmt.Errorf("failed to refresh controller, %w", err)
	}
	// the old admin client is deliberately not closed, closing it would close
	// the shared sarama client too
	admin, err := sarama.NewClusterAdminFromClient(r.saramaClient)
	if err != nil {
		return fmt.Errorf("failed to create new admin client, %w", err)
	}
	r.adminClient = admin
	return nil
}

func configFromYAML(yamlConfig string) (*sarama.Config, error) {
	c, err := sharedutil.GetSaramaConfigFromYAMLString(yamlConfig)
	if err != nil {
		return nil, err
	}
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	return c, nil
}

func (r *KafkaSource) startConsumer() {
	client, err := sarama.NewConsumerGroup(r.brokers, r.groupName, r.config)
	r.logger.Infow("creating NewConsumerGroup", zap.String("topic", r.topic), zap.String("consumerGroupName", r.groupName), zap.Strings("brokers", r.brokers))
	if err != nil {
		r.logger.Panicw("Problem initializing sarama client", zap.Error(err))
	}
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-r.lifecycleCtx.Done():
				return
			case cErr := <-client.Errors():
				r.logger.Errorw("Kafka consumer error", zap.Error(cErr))
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			// `Consume` should be called inside an infinite loop; when a
			// server-side re-balance happens, the consumer session will need to be
			// recreated to get the new claims
			if conErr := client.Consume(r.lifecycleCtx, []string{r.topic}, r.handler); conErr != nil {
				// Panic on errors to let it crash and restart the process
				r.logger.Panicw("Kafka consumer failed with error: ", zap.Error(conErr))
			}
			// check if context was cancelled, signaling that the consumer should stop
			if r.lifecycleCtx.Err() != nil {
				return
			}
		}
	}()
	wg.Wait()
	_ = client.Close()
	close(r.stopCh)
}

// toReadMessage converts a claimed message. The event time is left unset, the
// pipeline's timestamp assigner stamps it from the payload.
func toReadMessage(m *sarama.ConsumerMessage) *stream.ReadMessage {
	readOffset := &kafkaOffset{
		offset:       m.Offset,
		partitionIdx: m.Partition,
		topic:        m.Topic,
	}
	msg := stream.Message{
		Header: stream.Header{
			ID:  readOffset.String(),
			Key: string(m.Key),
		},
		Body: stream.Body{Payload: m.Value},
	}
	return &stream.ReadMessage{
		ReadOffset: readOffset,
		Message:    msg,
	}
}
