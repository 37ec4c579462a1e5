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

// Package fixed implements Fixed windows. Fixed windows (sometimes called tumbling windows) are
// defined by a static window size, e.g. minutely windows or hourly windows. They are aligned, i.e. every
// window applies across all the data for the corresponding period of time, and non-overlapping.
// Package fixed also maintains the state of active keyed windows; the watermark is used to trigger
// the expiration of windows.
package fixed

import (
	"time"

	"github.com/numaproj/flowagg/pkg/window"
	"github.com/numaproj/flowagg/pkg/window/keyed"
)

// Fixed implements the fixed window strategy.
// Fixed maintains the state of active windows. All the operations in Fixed (see window.Windower)
// order the entries in the ascending order of start time, so the earliest window is at the front
// and the most recent window is at the end.
type Fixed struct {
	// length is the temporal length of the window.
	length time.Duration
	// entries is the list of active windows that are currently being tracked,
	// sorted in chronological order with the earliest window at the head.
	entries *window.SortedWindowList[window.AlignedKeyedWindower]
}

var _ window.Windower = (*Fixed)(nil)

// NewFixed returns a Fixed windower.
func NewFixed(length time.Duration) *Fixed {
	return &Fixed{
		length:  length,
		entries: window.NewSortedWindowList[window.AlignedKeyedWindower](),
	}
}

// Length returns the temporal length of the window.
func (f *Fixed) Length() time.Duration {
	return f.length
}

// AssignWindow assigns a window for the given eventTime. Assignment of windows follows a
// left inclusive and right exclusive principle, so an element exactly on a boundary falls
// into the window to the right of the boundary. Window boundaries are aligned to the epoch
// regardless of the window length.
func (f *Fixed) AssignWindow(eventTime time.Time) []window.AlignedKeyedWindower {
	length := f.length.Milliseconds()
	offset := eventTime.UnixMilli() % length
	if offset < 0 {
		// event times before the epoch still bucket into the window to their left
		offset += length
	}
	start := time.UnixMilli(eventTime.UnixMilli() - offset)
	end := start.Add(f.length)

	return []window.AlignedKeyedWindower{
		keyed.NewKeyedWindow(start, end),
	}
}

// InsertIfNotPresent inserts a window to the list of active windows if not present.
func (f *Fixed) InsertIfNotPresent(kw window.AlignedKeyedWindower) (window.AlignedKeyedWindower, bool) {
	return f.entries.InsertIfNotPresent(kw)
}

// RemoveWindows returns an array of keyed windows whose end the watermark has reached or
// passed, so these windows can be closed. The windows are returned in ascending order of
// start time.
func (f *Fixed) RemoveWindows(wm time.Time) []window.AlignedKeyedWindower {
	return f.entries.RemoveWindows(wm)
}

// Len returns the number of active windows.
func (f *Fixed) Len() int {
	return f.entries.Len()
}

// Items returns a copy of the active windows.
func (f *Fixed) Items() []window.AlignedKeyedWindower {
	return f.entries.Items()
}
