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
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestTracker_Monotonous(t *testing.T) {
	tracker := NewTracker()
	assert.Equal(t, InitialWatermark.UnixMilli(), tracker.Current().UnixMilli())

	tests := []struct {
		name       string
		eventTime  time.Time
		expectedWM int64
	}{
		{
			name:       "first event advances to its timestamp",
			eventTime:  time.UnixMilli(60000),
			expectedWM: 60000,
		},
		{
			name:       "later event advances further",
			eventTime:  time.UnixMilli(120000),
			expectedWM: 120000,
		},
		{
			name:       "out of order event does not depress the watermark",
			eventTime:  time.UnixMilli(1000),
			expectedWM: 120000,
		},
		{
			name:       "equal timestamp keeps the watermark",
			eventTime:  time.UnixMilli(120000),
			expectedWM: 120000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wm := tracker.OnEvent(tt.eventTime)
			assert.Equal(t, tt.expectedWM, wm.UnixMilli())
			assert.Equal(t, tt.expectedWM, tracker.Current().UnixMilli())
		})
	}
}

func TestTracker_BoundedOutOfOrderness(t *testing.T) {
	tracker := NewTracker(WithDelay(5 * time.Second))

	// the watermark trails the max observed timestamp by the delay
	wm := tracker.OnEvent(time.UnixMilli(60000))
	assert.Equal(t, int64(55000), wm.UnixMilli())

	// an older event within the allowed lateness does not move it
	wm = tracker.OnEvent(time.UnixMilli(58000))
	assert.Equal(t, int64(55000), wm.UnixMilli())

	wm = tracker.OnEvent(time.UnixMilli(70000))
	assert.Equal(t, int64(65000), wm.UnixMilli())
}

func TestTracker_NeverBelowSentinel(t *testing.T) {
	tracker := NewTracker(WithDelay(time.Minute))

	// maxObserved - delay would be negative, the sentinel still holds
	wm := tracker.OnEvent(time.UnixMilli(500))
	assert.Equal(t, InitialWatermark.UnixMilli(), wm.UnixMilli())

	wm = tracker.OnEvent(time.UnixMilli(61000))
	assert.Equal(t, int64(1000), wm.UnixMilli())
}

// For any sequence of event timestamps, the watermark equals the running max
// at every step and never decreases.
func TestProperty_TrackerMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("watermark equals running max and never decreases", prop.ForAll(
		func(timestamps []int64) bool {
			tracker := NewTracker()
			runningMax := InitialWatermark.UnixMilli()
			previous := tracker.Current().UnixMilli()
			for _, ts := range timestamps {
				wm := tracker.OnEvent(time.UnixMilli(ts))
				if ts > runningMax {
					runningMax = ts
				}
				if wm.UnixMilli() != runningMax {
					return false
				}
				if wm.UnixMilli() < previous {
					return false
				}
				previous = wm.UnixMilli()
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 2000000000000)),
	))

	properties.Property("delayed watermark trails the running max by the delay", prop.ForAll(
		func(timestamps []int64, delayMs int64) bool {
			tracker := NewTracker(WithDelay(time.Duration(delayMs) * time.Millisecond))
			runningMax := int64(-1)
			for _, ts := range timestamps {
				wm := tracker.OnEvent(time.UnixMilli(ts))
				if ts > runningMax {
					runningMax = ts
				}
				expected := runningMax - delayMs
				if expected < InitialWatermark.UnixMilli() {
					expected = InitialWatermark.UnixMilli()
				}
				if wm.UnixMilli() != expected {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 2000000000000)),
		gen.Int64Range(0, 600000),
	))

	properties.TestingRun(t)
}
