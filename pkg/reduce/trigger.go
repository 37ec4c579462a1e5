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

package reduce

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/state"
	"github.com/numaproj/flowagg/pkg/stream"
	"github.com/numaproj/flowagg/pkg/window"
)

// trigger closes the windows crossed by the watermark and materializes their
// results into the output buffer. Windows close oldest first, so the results
// of one key are emitted in ascending window start order.
type trigger struct {
	pipelineName string
	windower     window.Windower
	store        *state.Store
	aggregator   aggregate.AggregateFunction
	toBuffer     stream.BufferWriter
	log          *zap.SugaredLogger
}

func newTrigger(ctx context.Context, pipelineName string, windower window.Windower, store *state.Store, aggregator aggregate.AggregateFunction, toBuffer stream.BufferWriter) *trigger {
	return &trigger{
		pipelineName: pipelineName,
		windower:     windower,
		store:        store,
		aggregator:   aggregator,
		toBuffer:     toBuffer,
		log:          logging.FromContext(ctx),
	}
}

// onWatermark closes every window whose end time is at or behind the
// watermark and emits one result per window key.
func (t *trigger) onWatermark(ctx context.Context, wm time.Time) error {
	closedWindows := t.windower.RemoveWindows(wm)
	for _, cw := range closedWindows {
		t.log.Debugw("Closing window",
			zap.Int64("windowStart", cw.StartTime().UnixMilli()),
			zap.Int64("windowEnd", cw.EndTime().UnixMilli()),
			zap.Int64("watermark", wm.UnixMilli()))
		activeWindowsCount.With(map[string]string{metrics.LabelPipeline: t.pipelineName}).Dec()
		closedWindowsCount.With(map[string]string{metrics.LabelPipeline: t.pipelineName}).Inc()
		if err := t.closePartitions(ctx, cw.Partitions()); err != nil {
			return err
		}
	}
	return nil
}

// closePartitions materializes and writes the result of each partition.
func (t *trigger) closePartitions(ctx context.Context, partitions []partition.ID) error {
	for _, id := range partitions {
		if err := t.emit(ctx, t.store, id); err != nil {
			return err
		}
	}
	return nil
}

// flush materializes every open partition of the given store, ordered by
// window start time then key. It is used to drain the merged state on a
// clean shutdown.
func (t *trigger) flush(ctx context.Context, flushStore *state.Store) error {
	for _, id := range flushStore.ListPartitions() {
		if err := t.emit(ctx, flushStore, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *trigger) emit(ctx context.Context, from *state.Store, id partition.ID) error {
	acc, ok := from.Evict(id)
	if !ok {
		// the window tracked the key, but the accumulator was discarded on
		// an earlier apply failure
		return nil
	}
	result, err := t.aggregator.Finalize(id, acc)
	if err != nil {
		t.log.Errorw("Failed to finalize partition", zap.String("partitionID", id.String()), zap.Error(err))
		platformError.With(map[string]string{metrics.LabelPipeline: t.pipelineName}).Inc()
		return nil
	}
	return t.writeToBuffer(ctx, result)
}

// writeToBuffer writes the results with exponential backoff till shutdown is
// triggered, retrying only the failed messages.
func (t *trigger) writeToBuffer(ctx context.Context, messages ...stream.Message) error {
	resultMessages := messages
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0

	writeErr := backoff.Retry(func() error {
		_, errs := t.toBuffer.Write(ctx, resultMessages)
		var failedMessages []stream.Message
		for i, message := range resultMessages {
			if errs[i] != nil {
				failedMessages = append(failedMessages, message)
			}
		}
		// retry only the failed messages
		if len(failedMessages) > 0 {
			writeMessagesError.With(map[string]string{metrics.LabelPipeline: t.pipelineName, "buffer": t.toBuffer.GetName()}).Add(float64(len(failedMessages)))
			t.log.Warnw("Failed to write results, retrying", zap.String("bufferTo", t.toBuffer.GetName()), zap.Int("failed", len(failedMessages)))
			resultMessages = failedMessages
			return fmt.Errorf("failed to write %d messages to %s", len(failedMessages), t.toBuffer.GetName())
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if writeErr != nil {
		return writeErr
	}
	resultMessagesCount.With(map[string]string{metrics.LabelPipeline: t.pipelineName, "buffer": t.toBuffer.GetName()}).Add(float64(len(messages)))
	return nil
}
