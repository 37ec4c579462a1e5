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

// Package generator provides an in-memory synthetic record source for local
// runs and load tests. Every tick it synthesizes a batch of records through a
// RecordFactory and hands them out via the stream.BufferReader interface.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/stream"
)

// MemGen is a synthetic record generator.
type MemGen struct {
	name         string
	pipelineName string
	// number of records per time unit
	rpu int
	// number of distinct keys spread over the records
	keyCount int32
	// unit of time at which records are generated
	duration time.Duration
	// event times are pushed back by a random amount up to jitter to simulate
	// out of order arrival
	jitter       time.Duration
	factory      RecordFactory
	messages     chan *stream.ReadMessage
	bufferSize   int
	readTimeout  time.Duration
	lifecycleCtx context.Context
	cancelFn     context.CancelFunc
	doneCh       chan struct{}
	started      bool
	logger       *zap.SugaredLogger
}

var _ stream.BufferReader = (*MemGen)(nil)

// NewMemGen returns a MemGen for the given configuration. Generation begins
// when Start is called.
func NewMemGen(pipelineName string, c config.GeneratorSourceConfig, factory RecordFactory, opts ...Option) (*MemGen, error) {
	if factory == nil {
		return nil, fmt.Errorf("no record factory provided")
	}
	gensrc := &MemGen{
		name:         "generator-source",
		pipelineName: pipelineName,
		rpu:          int(c.RPU),
		keyCount:     c.KeyCount,
		duration:     c.Duration(),
		jitter:       c.Jitter(),
		factory:      factory,
		bufferSize:   1000,            // default size
		readTimeout:  1 * time.Second, // default timeout
		logger:       logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(gensrc); err != nil {
			return nil, err
		}
	}
	gensrc.messages = make(chan *stream.ReadMessage, gensrc.bufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	gensrc.lifecycleCtx = ctx
	gensrc.cancelFn = cancel
	gensrc.doneCh = make(chan struct{})
	return gensrc, nil
}

// Start kicks off the generator loop.
func (mg *MemGen) Start() error {
	mg.started = true
	go mg.generator()
	return nil
}

func (mg *MemGen) generator() {
	defer close(mg.doneCh)
	ticker := time.NewTicker(mg.duration)
	defer ticker.Stop()
	next := int32(0)
	for {
		select {
		case <-mg.lifecycleCtx.Done():
			mg.logger.Info("Context done, exiting the generator loop")
			return
		case <-ticker.C:
			generatorSourceCount.With(map[string]string{metrics.LabelPipeline: mg.pipelineName, "source": mg.name}).Inc()
			for i := 0; i < mg.rpu; i++ {
				key := mg.factory.Key(next % mg.keyCount)
				next++
				eventTime := time.Now()
				if mg.jitter > 0 {
					eventTime = eventTime.Add(-time.Duration(rand.Int63n(int64(mg.jitter))))
				}
				payload, err := mg.factory.Record(key, eventTime)
				if err != nil {
					mg.logger.Errorw("Unable to generate a record", zap.Error(err))
					continue
				}
				select {
				case mg.messages <- newReadMessage(payload):
				case <-mg.lifecycleCtx.Done():
					return
				}
			}
		}
	}
}

// newReadMessage wraps a synthesized payload. The event time and key are
// stamped later by the pipeline's assigners, like any other source.
func newReadMessage(payload []byte) *stream.ReadMessage {
	readOffset := uuid.New().String()
	return &stream.ReadMessage{
		Message: stream.Message{
			Header: stream.Header{
				ID: readOffset,
			},
			Body: stream.Body{Payload: payload},
		},
		ReadOffset: stream.SimpleStringOffset(func() string { return readOffset }),
	}
}

func (mg *MemGen) GetName() string {
	return mg.name
}

func (mg *MemGen) Read(_ context.Context, count int64) ([]*stream.ReadMessage, error) {
	var msgs []*stream.ReadMessage
	timeout := time.After(mg.readTimeout)
loop:
	for i := int64(0); i < count; i++ {
		select {
		case m := <-mg.messages:
			generatorSourceReadCount.With(map[string]string{metrics.LabelPipeline: mg.pipelineName, "source": mg.name}).Inc()
			msgs = append(msgs, m)
		case <-timeout:
			mg.logger.Debugw("Timed out waiting for messages to read.", zap.Duration("waited", mg.readTimeout), zap.Int("read", len(msgs)))
			break loop
		}
	}
	return msgs, nil
}

func (mg *MemGen) Pending(_ context.Context) (int64, error) {
	return stream.PendingNotAvailable, nil
}

// Ack is a no-op, generated records are not re-delivered.
func (mg *MemGen) Ack(_ context.Context, offsets []stream.Offset) []error {
	return make([]error, len(offsets))
}

func (mg *MemGen) NoAck(_ context.Context, _ []stream.Offset) {}

func (mg *MemGen) Close() error {
	mg.logger.Info("Shutting down the generator source...")
	mg.cancelFn()
	if mg.started {
		<-mg.doneCh
	}
	mg.logger.Info("Generator source shutdown")
	return nil
}
