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
	"sort"
	"sync"
	"time"
)

// SortedWindowList is a thread safe list implementation, which is sorted by window start time
// from lowest to highest. Aligned windows sharing a start time are considered the same window.
type SortedWindowList[W AlignedKeyedWindower] struct {
	windows []W
	lock    *sync.RWMutex
}

// NewSortedWindowList implements a window list ordered by the start time. The Front/Head of the list will always have
// the smallest element while the End/Tail will have the largest element (start time).
func NewSortedWindowList[W AlignedKeyedWindower]() *SortedWindowList[W] {
	return &SortedWindowList[W]{
		windows: make([]W, 0),
		lock:    &sync.RWMutex{},
	}
}

// InsertIfNotPresent inserts a window to the list of active windows if not present and returns the window
// which is tracked in the list. The boolean is true when the window was already present.
func (s *SortedWindowList[W]) InsertIfNotPresent(window W) (W, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	index := sort.Search(len(s.windows), func(i int) bool {
		return !s.windows[i].StartTime().Before(window.StartTime())
	})

	if index < len(s.windows) && s.windows[index].StartTime().Equal(window.StartTime()) {
		return s.windows[index], true
	}

	s.windows = append(s.windows, window)
	copy(s.windows[index+1:], s.windows[index:])
	s.windows[index] = window

	return window, false
}

// RemoveWindows removes and returns the set of windows with end time smaller than or equal to the given time.
func (s *SortedWindowList[W]) RemoveWindows(t time.Time) []W {
	s.lock.Lock()
	defer s.lock.Unlock()

	index := sort.Search(len(s.windows), func(i int) bool {
		return s.windows[i].EndTime().After(t)
	})

	removed := make([]W, index)
	copy(removed, s.windows[:index])

	s.windows = s.windows[index:]

	return removed
}

// Len returns the length of the window list.
func (s *SortedWindowList[W]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.windows)
}

// Front returns the smallest element from the list.
func (s *SortedWindowList[W]) Front() W {
	var front W
	s.lock.RLock()
	defer s.lock.RUnlock()
	if len(s.windows) == 0 {
		return front
	}
	return s.windows[0]
}

// Back returns the largest element from the list.
func (s *SortedWindowList[W]) Back() W {
	var back W
	s.lock.RLock()
	defer s.lock.RUnlock()
	if len(s.windows) == 0 {
		return back
	}
	return s.windows[len(s.windows)-1]
}

// Items returns a copy of the entire window list.
func (s *SortedWindowList[W]) Items() []W {
	s.lock.RLock()
	defer s.lock.RUnlock()

	items := make([]W, len(s.windows))
	copy(items, s.windows)

	return items
}
