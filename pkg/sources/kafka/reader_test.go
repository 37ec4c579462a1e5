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

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"

	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/stream"
)

func testSourceConfig() config.KafkaSourceConfig {
	return config.KafkaSourceConfig{
		Brokers:       []string{"b1:9092", "b2:9092"},
		Topic:         "t1",
		ConsumerGroup: "g1",
	}
}

func TestNewKafkaSource(t *testing.T) {
	ks, err := NewKafkaSource("test-pipeline", testSourceConfig())
	assert.NoError(t, err)
	assert.Equal(t, "kafka-source-t1", ks.GetName())
	assert.Equal(t, "g1", ks.groupName)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, ks.brokers)
	assert.Equal(t, 100, ks.handlerBuffer)
	assert.Equal(t, 1*time.Second, ks.readTimeout)
	assert.NotNil(t, ks.config)
	assert.True(t, ks.config.Consumer.Return.Errors)
	assert.Equal(t, 100, cap(ks.handler.messages))
}

func TestNewKafkaSource_Options(t *testing.T) {
	ks, err := NewKafkaSource("test-pipeline", testSourceConfig(),
		WithLogger(logging.NewLogger()),
		WithBufferSize(110),
		WithReadTimeOut(300*time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, 110, ks.handlerBuffer)
	assert.Equal(t, 110, cap(ks.handler.messages))
	assert.Equal(t, 300*time.Millisecond, ks.readTimeout)
}

func TestNewKafkaSource_SaramaConfig(t *testing.T) {
	c := testSourceConfig()
	c.Config = `
producer:
  maxMessageBytes: 600
`
	ks, err := NewKafkaSource("test-pipeline", c)
	assert.NoError(t, err)
	assert.Equal(t, 600, ks.config.Producer.MaxMessageBytes)
}

func TestKafkaSource_Read(t *testing.T) {
	ks, err := NewKafkaSource("test-pipeline", testSourceConfig(), WithReadTimeOut(100*time.Millisecond))
	assert.NoError(t, err)
	for i := 0; i < 3; i++ {
		ks.handler.messages <- &sarama.ConsumerMessage{
			Topic:     "t1",
			Partition: 1,
			Offset:    int64(100 + i),
			Key:       []byte("k1"),
			Value:     []byte(`{"value":1}`),
		}
	}

	msgs, err := ks.Read(context.Background(), 2)
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "t1:1:100", msgs[0].ReadOffset.String())
	assert.Equal(t, "t1:1:100", msgs[0].ID)
	assert.Equal(t, "k1", msgs[0].Key)
	assert.Equal(t, []byte(`{"value":1}`), msgs[0].Payload)
	// the event time is stamped later by the timestamp assigner
	assert.True(t, msgs[0].EventTime.IsZero())

	// only one message is left, the read returns short once the timeout fires
	msgs, err = ks.Read(context.Background(), 5)
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, "t1:1:102", msgs[0].ReadOffset.String())
}

func TestKafkaSource_Ack(t *testing.T) {
	ks, err := NewKafkaSource("test-pipeline", testSourceConfig())
	assert.NoError(t, err)
	sess := &fakeConsumerGroupSession{}
	ks.handler.sess = sess

	errs := ks.Ack(context.Background(), []stream.Offset{
		&kafkaOffset{offset: 42, partitionIdx: 1, topic: "t1"},
		&kafkaOffset{offset: 7, partitionIdx: 0, topic: "t1"},
	})
	assert.Len(t, errs, 2)
	for _, e := range errs {
		assert.NoError(t, e)
	}
	// the next offset to read is marked, not the acked one
	assert.Equal(t, []markedOffset{
		{topic: "t1", partition: 1, offset: 43, metadata: ""},
		{topic: "t1", partition: 0, offset: 8, metadata: ""},
	}, sess.marked)
	// the inflight acks channel must be closed again for the next cleanup
	select {
	case <-ks.handler.inflightAcks:
	default:
		t.Fatal("expected the inflight acks channel to be closed after Ack")
	}
}

func TestKafkaSource_AckSkipsForeignOffsets(t *testing.T) {
	ks, err := NewKafkaSource("test-pipeline", testSourceConfig())
	assert.NoError(t, err)
	sess := &fakeConsumerGroupSession{}
	ks.handler.sess = sess

	errs := ks.Ack(context.Background(), []stream.Offset{stream.SimpleStringOffset(func() string { return "123" })})
	assert.Len(t, errs, 1)
	assert.Empty(t, sess.marked)
}

func TestKafkaSource_PendingNotAvailable(t *testing.T) {
	ks, err := NewKafkaSource("test-pipeline", testSourceConfig())
	assert.NoError(t, err)
	p, err := ks.Pending(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, stream.PendingNotAvailable, p)
}

func TestOffsetConversion(t *testing.T) {
	o := &kafkaOffset{offset: 64, partitionIdx: 32, topic: "t1"}
	assert.Equal(t, "t1:32:64", o.String())
	seq, err := o.Sequence()
	assert.NoError(t, err)
	assert.Equal(t, int64(64), seq)
	assert.Equal(t, int32(32), o.PartitionIdx())
	assert.Equal(t, "t1", o.Topic())
	assert.NoError(t, o.AckIt())
	assert.NoError(t, o.NoAck())

	topic, partition, offset, err := offsetFrom(o.String())
	assert.NoError(t, err)
	assert.Equal(t, "t1", topic)
	assert.Equal(t, int32(32), partition)
	assert.Equal(t, int64(64), offset)
}

func TestOffsetFrom_Malformed(t *testing.T) {
	for _, identifier := range []string{"", "t1", "t1:32", "t1:32:64:96", "t1:x:64", "t1:32:y"} {
		_, _, _, err := offsetFrom(identifier)
		assert.Error(t, err, identifier)
	}
}
