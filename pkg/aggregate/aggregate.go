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

// Package aggregate defines the contract of the domain supplied aggregation
// function. The function is incremental (events are folded into an
// accumulator one at a time), mergeable (two partial accumulators for the
// same key combine into one, the merge has to be associative and commutative)
// and finalizable (the accumulator projects into the emitted result).
package aggregate

import (
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/stream"
)

// Accumulator is the intermediate aggregate state of exactly one
// (key, window) partition. It is owned by the keyed store entry and never
// shared across partitions.
type Accumulator interface {
	// Key returns the partition key the accumulator belongs to.
	Key() string
}

// AggregateFunction folds events into accumulators and materializes results.
type AggregateFunction interface {
	// Add incorporates one event into the accumulator and returns the updated
	// accumulator. A nil accumulator means this is the first event of the
	// partition and a fresh accumulator has to be created from it. Add must
	// not re-scan prior events.
	Add(acc Accumulator, msg *stream.ReadMessage) (Accumulator, error)
	// Merge combines two partial accumulators of the same key into one.
	// Merging accumulators of different keys is a programming error and
	// returns a KeyMismatchError.
	Merge(a Accumulator, b Accumulator) (Accumulator, error)
	// Finalize projects the accumulator of the given partition into the
	// result message. It must not mutate the accumulator.
	Finalize(id partition.ID, acc Accumulator) (stream.Message, error)
}

// AddFunc utility type used to create an AggregateFunction from ordinary functions.
type AddFunc func(acc Accumulator, msg *stream.ReadMessage) (Accumulator, error)

// MergeFunc utility type used to create an AggregateFunction from ordinary functions.
type MergeFunc func(a Accumulator, b Accumulator) (Accumulator, error)

// FinalizeFunc utility type used to create an AggregateFunction from ordinary functions.
type FinalizeFunc func(id partition.ID, acc Accumulator) (stream.Message, error)

// AggregateFns bundles the three functions into an AggregateFunction, mostly
// used in tests and by embedders.
type AggregateFns struct {
	AddFn      AddFunc
	MergeFn    MergeFunc
	FinalizeFn FinalizeFunc
}

var _ AggregateFunction = (*AggregateFns)(nil)

func (f *AggregateFns) Add(acc Accumulator, msg *stream.ReadMessage) (Accumulator, error) {
	return f.AddFn(acc, msg)
}

func (f *AggregateFns) Merge(a Accumulator, b Accumulator) (Accumulator, error) {
	return f.MergeFn(a, b)
}

func (f *AggregateFns) Finalize(id partition.ID, acc Accumulator) (stream.Message, error) {
	return f.FinalizeFn(id, acc)
}
