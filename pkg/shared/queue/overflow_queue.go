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

package queue

import "sync"

// OverflowQueue is a thread safe queue with a max size, the oldest elements
// automatically overflow. It backs the sliding lag samples of the metrics
// server.
type OverflowQueue[T any] struct {
	elements []T
	head     int
	length   int
	lock     *sync.RWMutex
}

func New[T any](size int) *OverflowQueue[T] {
	return &OverflowQueue[T]{
		elements: make([]T, size),
		lock:     new(sync.RWMutex),
	}
}

// Append adds an element to the queue, evicting the oldest element when the
// queue is full.
func (q *OverflowQueue[T]) Append(value T) {
	q.lock.Lock()
	defer q.lock.Unlock()
	tail := (q.head + q.length) % len(q.elements)
	q.elements[tail] = value
	if q.length == len(q.elements) {
		q.head = (q.head + 1) % len(q.elements)
	} else {
		q.length++
	}
}

// Items returns a copy of the elements in the queue, oldest first.
func (q *OverflowQueue[T]) Items() []T {
	q.lock.RLock()
	defer q.lock.RUnlock()
	r := make([]T, q.length)
	for i := 0; i < q.length; i++ {
		r[i] = q.elements[(q.head+i)%len(q.elements)]
	}
	return r
}

// ReversedItems returns a copy of the elements in the queue, newest first.
func (q *OverflowQueue[T]) ReversedItems() []T {
	items := q.Items()
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// Length returns the current length of the queue.
func (q *OverflowQueue[T]) Length() int {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return q.length
}
