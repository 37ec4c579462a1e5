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

// Package reduce reads messages from a buffer, stamps each one with its event
// time, key and watermark, shards the stream by key across a pool of workers
// and materializes the aggregate of every closed window into the output
// buffer. A key lives on exactly one worker, so windowing and aggregation
// need no cross worker locking.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/assign"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/shuffle"
	"github.com/numaproj/flowagg/pkg/state"
	"github.com/numaproj/flowagg/pkg/stream"
	"github.com/numaproj/flowagg/pkg/watermark"
	"github.com/numaproj/flowagg/pkg/window"
)

// shutdownFlushTimeout bounds the final flush so a wedged writer cannot block
// the shutdown forever.
const shutdownFlushTimeout = 30 * time.Second

// worker owns a disjoint slice of the key space. The windower tracks the
// windows of the keys routed here and the store holds their accumulators.
type worker struct {
	index    int
	ch       chan *stream.ReadMessage
	windower window.Windower
	store    *state.Store
	trigger  *trigger
}

// DataForward reads from fromBuffer and forwards the aggregated window
// results to toBuffer.
type DataForward struct {
	pipelineName      string
	fromBuffer        stream.BufferReader
	toBuffer          stream.BufferWriter
	aggregator        aggregate.AggregateFunction
	timestampAssigner assign.TimestampAssigner
	keyExtractor      assign.KeyExtractor
	tracker           *watermark.Tracker
	shuffler          *shuffle.Shuffle
	// assignWindower decides lateness at ingestion, the live window lists are
	// per worker
	assignWindower window.Windower
	workers        []*worker
	opts           *Options
	stopped        chan struct{}
	stopOnce       sync.Once
	log            *zap.SugaredLogger
}

// NewDataForward returns a DataForward. windowerFn is invoked once per worker
// so every worker gets a window list of its own.
func NewDataForward(ctx context.Context,
	pipelineName string,
	fromBuffer stream.BufferReader,
	toBuffer stream.BufferWriter,
	windowerFn func() window.Windower,
	aggregator aggregate.AggregateFunction,
	timestampAssigner assign.TimestampAssigner,
	keyExtractor assign.KeyExtractor,
	tracker *watermark.Tracker,
	opts ...Option) (*DataForward, error) {

	options := DefaultOptions()
	for _, o := range opts {
		if err := o(options); err != nil {
			return nil, err
		}
	}

	df := &DataForward{
		pipelineName:      pipelineName,
		fromBuffer:        fromBuffer,
		toBuffer:          toBuffer,
		aggregator:        aggregator,
		timestampAssigner: timestampAssigner,
		keyExtractor:      keyExtractor,
		tracker:           tracker,
		shuffler:          shuffle.NewShuffle(options.workers),
		assignWindower:    windowerFn(),
		workers:           make([]*worker, options.workers),
		opts:              options,
		stopped:           make(chan struct{}),
		log:               logging.FromContext(ctx),
	}
	for i := range df.workers {
		windower := windowerFn()
		store := state.NewStore(aggregator)
		df.workers[i] = &worker{
			index:    i,
			ch:       make(chan *stream.ReadMessage, options.channelBufferSize),
			windower: windower,
			store:    store,
			trigger:  newTrigger(ctx, pipelineName, windower, store, aggregator, toBuffer),
		}
	}
	return df, nil
}

// Start runs the forwarder until the input stream ends, Stop is called or the
// context is canceled. A graceful stop flushes the windows still open to the
// output buffer, a failure or cancellation discards them.
func (df *DataForward) Start(ctx context.Context) error {
	df.log.Infow("Starting the reduce forwarder...",
		zap.String("bufferFrom", df.fromBuffer.GetName()),
		zap.String("bufferTo", df.toBuffer.GetName()),
		zap.Int("workers", len(df.workers)))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range df.workers {
		g.Go(func() error {
			return df.runWorker(gctx, w)
		})
	}
	g.Go(func() error {
		defer func() {
			for _, w := range df.workers {
				close(w.ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-df.stopped:
				df.log.Infow("Stopping the reduce forwarder...")
				return nil
			default:
				if err := df.forwardAChunk(gctx); err != nil {
					var eosErr stream.EOSError
					if errors.As(err, &eosErr) {
						df.log.Infow("Input stream closed and drained", zap.String("bufferFrom", df.fromBuffer.GetName()))
						return nil
					}
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		df.log.Errorw("Reduce forwarder failed, discarding the open state", zap.Error(err))
		return err
	}
	if !df.opts.flushOnShutdown {
		df.log.Infow("Discarding the open state at shutdown")
		return nil
	}
	return df.flush()
}

// Stop initiates a graceful stop. Start returns once the open state has been
// flushed or discarded per the options.
func (df *DataForward) Stop() {
	df.stopOnce.Do(func() {
		close(df.stopped)
	})
}

// forwardAChunk reads a chunk from the buffer, stamps event time, key,
// watermark and lateness on each message, hands the messages over to the
// workers owning their keys and acks the chunk.
func (df *DataForward) forwardAChunk(ctx context.Context) error {
	readMessages, readErr := df.fromBuffer.Read(ctx, df.opts.readBatchSize)
	var eosErr stream.EOSError
	isEOS := errors.As(readErr, &eosErr)
	if readErr != nil && !isEOS {
		df.log.Errorw("Failed to read from buffer", zap.String("bufferFrom", df.fromBuffer.GetName()), zap.Error(readErr))
		readMessagesError.With(map[string]string{metrics.LabelPipeline: df.pipelineName, "buffer": df.fromBuffer.GetName()}).Inc()
	}
	if len(readMessages) == 0 {
		if isEOS {
			return readErr
		}
		return nil
	}
	readMessagesCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName, "buffer": df.fromBuffer.GetName()}).Add(float64(len(readMessages)))

	offsets := make([]stream.Offset, len(readMessages))
	for i, m := range readMessages {
		offsets[i] = m.ReadOffset
	}

	routable := make([]*stream.ReadMessage, 0, len(readMessages))
	for _, m := range readMessages {
		eventTime, err := df.timestampAssigner.ExtractTimestamp(m.Payload)
		if err != nil {
			if df.opts.extractionPolicy == ExtractionHalt {
				df.fromBuffer.NoAck(ctx, offsets)
				return fmt.Errorf("failed to extract the event time from offset %s: %w", m.ReadOffset.String(), err)
			}
			df.log.Warnw("Dropping message, cannot extract the event time", zap.String("offset", m.ReadOffset.String()), zap.Error(err))
			droppedMessagesCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName, metrics.LabelReason: reasonExtractionError}).Inc()
			continue
		}
		key, err := df.keyExtractor.ExtractKey(m.Payload)
		if err != nil {
			if df.opts.extractionPolicy == ExtractionHalt {
				df.fromBuffer.NoAck(ctx, offsets)
				return fmt.Errorf("failed to extract the key from offset %s: %w", m.ReadOffset.String(), err)
			}
			df.log.Warnw("Dropping message, cannot extract the key", zap.String("offset", m.ReadOffset.String()), zap.Error(err))
			droppedMessagesCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName, metrics.LabelReason: reasonExtractionError}).Inc()
			continue
		}

		m.EventTime = eventTime
		m.Key = key
		wm := df.tracker.OnEvent(eventTime)
		m.Watermark = time.Time(wm)
		// an event is late once the window it belongs to has already closed
		for _, win := range df.assignWindower.AssignWindow(eventTime) {
			if !win.EndTime().After(time.Time(wm)) {
				m.IsLate = true
				break
			}
		}
		routable = append(routable, m)
	}

	// hand over to the workers, preserving the read order within each worker
	for index, group := range df.shuffler.ShuffleMessages(routable) {
		for _, m := range group {
			select {
			case df.workers[index].ch <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// ack the whole chunk, the dropped messages included, we do not want a
	// replay of messages we cannot parse
	if err := df.ackChunk(ctx, offsets); err != nil {
		return err
	}
	if isEOS {
		return readErr
	}
	return nil
}

// ackChunk acknowledges the offsets, retrying the failed ones with
// exponential backoff until the context is canceled.
func (df *DataForward) ackChunk(ctx context.Context, offsets []stream.Offset) error {
	ackBackOff := backoff.NewExponentialBackOff()
	ackBackOff.InitialInterval = 100 * time.Millisecond
	ackBackOff.Multiplier = 1.5
	ackBackOff.RandomizationFactor = 0.1
	ackBackOff.MaxElapsedTime = 0

	toAck := offsets
	return backoff.Retry(func() error {
		errs := df.fromBuffer.Ack(ctx, toAck)
		failed := make([]stream.Offset, 0)
		for i, err := range errs {
			if err != nil {
				failed = append(failed, toAck[i])
			}
		}
		if acked := len(toAck) - len(failed); acked > 0 {
			ackMessagesCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName, "buffer": df.fromBuffer.GetName()}).Add(float64(acked))
		}
		if len(failed) > 0 {
			ackMessageError.With(map[string]string{metrics.LabelPipeline: df.pipelineName, "buffer": df.fromBuffer.GetName()}).Add(float64(len(failed)))
			df.log.Warnw("Failed to ack messages, retrying", zap.Int("failed", len(failed)), zap.String("bufferFrom", df.fromBuffer.GetName()))
			toAck = failed
			return fmt.Errorf("failed to ack %d messages", len(failed))
		}
		return nil
	}, backoff.WithContext(ackBackOff, ctx))
}

// runWorker drains the worker channel until it closes. Returning an error
// tears the whole forwarder down.
func (df *DataForward) runWorker(ctx context.Context, w *worker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-w.ch:
			if !ok {
				return nil
			}
			if err := df.processMessage(ctx, w, m); err != nil {
				return err
			}
		}
	}
}

// processMessage applies the message to every window it belongs to and then
// runs the trigger against the watermark the message carried.
func (df *DataForward) processMessage(ctx context.Context, w *worker, m *stream.ReadMessage) error {
	if m.IsLate {
		df.log.Warnw("Dropping the late message",
			zap.String("key", m.Key),
			zap.Int64("eventTime", m.EventTime.UnixMilli()),
			zap.Int64("watermark", m.Watermark.UnixMilli()))
		if df.opts.lateEventPolicy == LateDropWithMetric {
			droppedMessagesCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName, metrics.LabelReason: reasonLate}).Inc()
		}
		return nil
	}

	for _, win := range w.windower.AssignWindow(m.EventTime) {
		kw, isPresent := w.windower.InsertIfNotPresent(win)
		if !isPresent {
			activeWindowsCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName}).Inc()
		}
		kw.AddKey(m.Key)
		id := partition.ID{Start: kw.StartTime(), End: kw.EndTime(), Key: m.Key}
		if err := w.store.ApplyEvent(id, m); err != nil {
			// a key mismatch means the sharding itself is broken
			var mismatchErr aggregate.KeyMismatchError
			if errors.As(err, &mismatchErr) {
				return err
			}
			df.log.Errorw("Failed to apply the event, discarding the partition", zap.String("partition", id.String()), zap.Error(err))
			droppedMessagesCount.With(map[string]string{metrics.LabelPipeline: df.pipelineName, metrics.LabelReason: reasonAggregateError}).Inc()
		}
	}

	return w.trigger.onWatermark(ctx, m.Watermark)
}

// flush merges the per worker states through a single merger and emits every
// partition still open. It runs on its own bounded context because the caller
// context is usually canceled by the time we get here.
func (df *DataForward) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	stores := make(chan *state.Store, len(df.workers))
	for _, w := range df.workers {
		stores <- w.store
	}
	close(stores)

	merged, err := state.MergeStores(ctx, stores, df.aggregator)
	if err != nil {
		return err
	}
	if merged.Len() == 0 {
		return nil
	}
	df.log.Infow("Flushing the windows still open at shutdown", zap.Int("partitions", merged.Len()))
	return df.workers[0].trigger.flush(ctx, merged)
}
