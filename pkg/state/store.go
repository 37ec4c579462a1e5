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

// Package state holds the keyed window accumulators of the reduce loop. Each
// worker owns one Store and is its only writer during normal processing;
// cross-store access happens only through MergeStores during a flush.
package state

import (
	"context"
	"sort"
	"sync"

	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/stream"
)

type entry struct {
	id  partition.ID
	acc aggregate.Accumulator
}

// Store maps open window partitions to their accumulators.
type Store struct {
	lock       sync.RWMutex
	entries    map[string]*entry
	aggregator aggregate.AggregateFunction
}

// NewStore returns an empty store backed by the given aggregate function.
func NewStore(aggregator aggregate.AggregateFunction) *Store {
	return &Store{
		entries:    make(map[string]*entry),
		aggregator: aggregator,
	}
}

// ApplyEvent folds one message into the partition's accumulator, creating the
// accumulator on the partition's first event. When the aggregate function
// fails, the partition entry is discarded because its state may be
// inconsistent, and the error is returned wrapped in an
// aggregate.ApplyError.
func (s *Store) ApplyEvent(id partition.ID, msg *stream.ReadMessage) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := id.String()
	var current aggregate.Accumulator
	if e, ok := s.entries[key]; ok {
		current = e.acc
	}
	next, err := s.aggregator.Add(current, msg)
	if err != nil {
		delete(s.entries, key)
		return aggregate.ApplyError{Op: "add", PartitionID: key, Err: err}
	}
	s.entries[key] = &entry{id: id, acc: next}
	return nil
}

// Merge folds every entry of other into the store. Partitions missing from
// the store are adopted as-is; colliding partitions are combined with the
// aggregate function's Merge. On failure the colliding entry is discarded and
// the error returned.
func (s *Store) Merge(other *Store) error {
	if other == nil || other == s {
		return nil
	}
	other.lock.RLock()
	incoming := make([]*entry, 0, len(other.entries))
	for _, e := range other.entries {
		incoming = append(incoming, e)
	}
	other.lock.RUnlock()

	s.lock.Lock()
	defer s.lock.Unlock()
	for _, e := range incoming {
		key := e.id.String()
		existing, ok := s.entries[key]
		if !ok {
			s.entries[key] = &entry{id: e.id, acc: e.acc}
			continue
		}
		merged, err := s.aggregator.Merge(existing.acc, e.acc)
		if err != nil {
			delete(s.entries, key)
			return aggregate.ApplyError{Op: "merge", PartitionID: key, Err: err}
		}
		s.entries[key] = &entry{id: e.id, acc: merged}
	}
	return nil
}

// Get returns the partition's accumulator without removing it.
func (s *Store) Get(id partition.ID) (aggregate.Accumulator, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	e, ok := s.entries[id.String()]
	if !ok {
		return nil, false
	}
	return e.acc, true
}

// Evict removes and returns the partition's accumulator. The second return
// is false when the partition holds no state, which happens when a window
// closed without any event surviving for the key.
func (s *Store) Evict(id partition.ID) (aggregate.Accumulator, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := id.String()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	return e.acc, true
}

// ListPartitions returns the open partitions ordered by window start time,
// ties broken by key. The ordering keeps flush emission ascending per key.
func (s *Store) ListPartitions() []partition.ID {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ids := make([]partition.ID, 0, len(s.entries))
	for _, e := range s.entries {
		ids = append(ids, e.id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if !ids[i].Start.Equal(ids[j].Start) {
			return ids[i].Start.Before(ids[j].Start)
		}
		return ids[i].Key < ids[j].Key
	})
	return ids
}

// Len returns the number of open partitions.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.entries)
}

// MergeStores reduces the partial stores received over the channel into a
// single store. It is the one writer of the target store, so the per-worker
// stores need no coordination beyond handing themselves off on the channel.
// It returns when the channel is closed or the context is canceled.
func MergeStores(ctx context.Context, stores <-chan *Store, aggregator aggregate.AggregateFunction) (*Store, error) {
	merged := NewStore(aggregator)
	for {
		select {
		case <-ctx.Done():
			return merged, ctx.Err()
		case s, ok := <-stores:
			if !ok {
				return merged, nil
			}
			if err := merged.Merge(s); err != nil {
				return merged, err
			}
		}
	}
}
