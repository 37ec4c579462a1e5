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

package watermark

import (
	"time"

	"go.uber.org/atomic"
)

// Tracker consumes the extracted event timestamps and produces the watermark.
// Without a delay the watermark follows the max timestamp seen (monotonous
// policy); with a delay d it trails the max timestamp by d (bounded
// out-of-orderness policy). The watermark never goes backwards, late
// timestamps leave it unchanged.
type Tracker struct {
	maxObserved *atomic.Int64
	watermark   *atomic.Int64
	delay       time.Duration
}

// TrackerOption is used to customize the Tracker.
type TrackerOption func(*Tracker)

// WithDelay sets the allowed out-of-orderness. The produced watermark trails
// the max observed timestamp by the given duration.
func WithDelay(t time.Duration) TrackerOption {
	return func(opts *Tracker) {
		opts.delay = t
	}
}

// NewTracker returns a new Tracker initialized with the sentinel watermark.
func NewTracker(inputOpts ...TrackerOption) *Tracker {
	tracker := &Tracker{
		maxObserved: atomic.NewInt64(InitialWatermark.UnixMilli()),
		watermark:   atomic.NewInt64(InitialWatermark.UnixMilli()),
		delay:       0,
	}
	for _, opt := range inputOpts {
		opt(tracker)
	}
	return tracker
}

// OnEvent records an extracted event timestamp and advances the watermark.
// It returns the watermark after the advance.
func (t *Tracker) OnEvent(eventTime time.Time) Watermark {
	ts := eventTime.UnixMilli()
	for {
		max := t.maxObserved.Load()
		if ts <= max || t.maxObserved.CompareAndSwap(max, ts) {
			break
		}
	}
	candidate := t.maxObserved.Load() - t.delay.Milliseconds()
	for {
		current := t.watermark.Load()
		if candidate <= current || t.watermark.CompareAndSwap(current, candidate) {
			break
		}
	}
	return t.Current()
}

// Current returns the current watermark.
func (t *Tracker) Current() Watermark {
	return Watermark(time.UnixMilli(t.watermark.Load()))
}
