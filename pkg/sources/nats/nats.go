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

// Package nats implements a stream.BufferReader on top of a NATS queue
// subscription.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/stream"
)

// NatsSource reads messages from a NATS subject as part of a queue group, so
// multiple pipeline instances share the subject without duplicates.
type NatsSource struct {
	name         string
	pipelineName string
	url          string
	subject      string
	queue        string
	logger       *zap.SugaredLogger
	natsConn     *natslib.Conn
	sub          *natslib.Subscription
	bufferSize   int
	messages     chan *stream.ReadMessage
	readTimeout  time.Duration
}

var _ stream.BufferReader = (*NatsSource)(nil)

// NewNatsSource returns a NatsSource for the given configuration. No
// connection is made until Start is called.
func NewNatsSource(pipelineName string, c config.NatsSourceConfig, opts ...Option) (*NatsSource, error) {
	n := &NatsSource{
		name:         fmt.Sprintf("nats-source-%s", c.Subject),
		pipelineName: pipelineName,
		url:          c.URL,
		subject:      c.Subject,
		queue:        c.Queue,
		bufferSize:   1000,            // default size
		readTimeout:  1 * time.Second, // default timeout
		logger:       logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}
	n.messages = make(chan *stream.ReadMessage, n.bufferSize)
	return n, nil
}

// Start connects to the nats server and subscribes to the subject.
func (ns *NatsSource) Start() error {
	opt := []natslib.Option{
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(3 * time.Second),
		natslib.DisconnectErrHandler(func(c *natslib.Conn, err error) {
			ns.logger.Errorw("Nats disconnected", zap.Error(err))
		}),
		natslib.ReconnectHandler(func(c *natslib.Conn) {
			ns.logger.Info("Nats reconnected")
		}),
	}

	ns.logger.Info("Connecting to nats service...")
	conn, err := natslib.Connect(ns.url, opt...)
	if err != nil {
		return fmt.Errorf("failed to connect to nats server, %w", err)
	}
	ns.natsConn = conn

	sub, err := conn.QueueSubscribe(ns.subject, ns.queue, func(msg *natslib.Msg) {
		readOffset := uuid.New().String()
		m := &stream.ReadMessage{
			Message: stream.Message{
				Header: stream.Header{
					// the event time and key are stamped later by the
					// pipeline's assigners
					ID: readOffset,
				},
				Body: stream.Body{Payload: msg.Data},
			},
			ReadOffset: stream.SimpleStringOffset(func() string { return readOffset }),
		}
		ns.messages <- m
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to QueueSubscribe nats messages, %w", err)
	}
	ns.sub = sub
	return nil
}

func (ns *NatsSource) GetName() string {
	return ns.name
}

func (ns *NatsSource) Read(_ context.Context, count int64) ([]*stream.ReadMessage, error) {
	var msgs []*stream.ReadMessage
	timeout := time.After(ns.readTimeout)
loop:
	for i := int64(0); i < count; i++ {
		select {
		case m := <-ns.messages:
			natsSourceReadCount.With(map[string]string{metrics.LabelPipeline: ns.pipelineName, "source": ns.name}).Inc()
			msgs = append(msgs, m)
		case <-timeout:
			ns.logger.Debugw("Timed out waiting for messages to read.", zap.Duration("waited", ns.readTimeout), zap.Int("read", len(msgs)))
			break loop
		}
	}
	ns.logger.Debugf("Read %d messages.", len(msgs))
	return msgs, nil
}

func (ns *NatsSource) Pending(_ context.Context) (int64, error) {
	return stream.PendingNotAvailable, nil
}

// IsHealthy checks if the nats connection is up.
func (ns *NatsSource) IsHealthy(_ context.Context) error {
	if ns.natsConn == nil || !ns.natsConn.IsConnected() {
		return fmt.Errorf("nats connection is not available")
	}
	return nil
}

// Ack is a no-op, core nats does not re-deliver messages.
func (ns *NatsSource) Ack(_ context.Context, offsets []stream.Offset) []error {
	return make([]error, len(offsets))
}

func (ns *NatsSource) NoAck(_ context.Context, _ []stream.Offset) {}

func (ns *NatsSource) Close() error {
	ns.logger.Info("Shutting down nats source server...")
	if ns.sub != nil {
		if err := ns.sub.Unsubscribe(); err != nil {
			ns.logger.Errorw("Failed to unsubscribe nats subscription", zap.Error(err))
		}
	}
	if ns.natsConn != nil {
		ns.natsConn.Close()
	}
	ns.logger.Info("Nats source server shutdown")
	return nil
}
