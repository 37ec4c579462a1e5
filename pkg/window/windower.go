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

package window

import (
	"time"

	"github.com/numaproj/flowagg/pkg/partition"
)

// AlignedKeyedWindower represents a bounded window (bounded by start and end)
// which tracks the keys seen within it.
type AlignedKeyedWindower interface {
	// StartTime returns the start time of the window
	StartTime() time.Time
	// EndTime returns the end time of the window
	EndTime() time.Time
	// AddKey adds a key to the window
	AddKey(string)
	// Keys returns the keys seen within the window
	Keys() []string
	// Partitions returns an array of partition ids for the window, one per key
	Partitions() []partition.ID
}

// Windower assigns events to windows and manages the set of active windows.
type Windower interface {
	// AssignWindow assigns the event with the given event time to one or more windows.
	// The assignment only depends on the event time, never on the arrival time.
	AssignWindow(eventTime time.Time) []AlignedKeyedWindower
	// InsertIfNotPresent inserts a window to the list of active windows if not present
	// and returns the window which is tracked in the list.
	InsertIfNotPresent(aw AlignedKeyedWindower) (AlignedKeyedWindower, bool)
	// RemoveWindows returns an array of windows that can be closed because the
	// given time (the watermark) is at or past their end. The returned windows
	// are ordered by start time, earliest first.
	RemoveWindows(t time.Time) []AlignedKeyedWindower
}
