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

package state

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/stream"
)

type sumAcc struct {
	key   string
	total int64
	count int64
}

func (s *sumAcc) Key() string { return s.key }

// sumAggregator folds integer payloads into a per-key running sum.
func sumAggregator() aggregate.AggregateFunction {
	return &aggregate.AggregateFns{
		AddFn: func(acc aggregate.Accumulator, msg *stream.ReadMessage) (aggregate.Accumulator, error) {
			value, err := strconv.ParseInt(string(msg.Payload), 10, 64)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				return &sumAcc{key: msg.Key, total: value, count: 1}, nil
			}
			current := acc.(*sumAcc)
			return &sumAcc{key: current.key, total: current.total + value, count: current.count + 1}, nil
		},
		MergeFn: func(a aggregate.Accumulator, b aggregate.Accumulator) (aggregate.Accumulator, error) {
			x, y := a.(*sumAcc), b.(*sumAcc)
			if x.key != y.key {
				return nil, aggregate.KeyMismatchError{AKey: x.key, BKey: y.key}
			}
			return &sumAcc{key: x.key, total: x.total + y.total, count: x.count + y.count}, nil
		},
		FinalizeFn: func(id partition.ID, acc aggregate.Accumulator) (stream.Message, error) {
			current := acc.(*sumAcc)
			return stream.Message{
				Header: stream.Header{ID: id.String(), Key: current.key},
				Body:   stream.Body{Payload: []byte(strconv.FormatInt(current.total, 10))},
			}, nil
		},
	}
}

func buildMsg(key, payload string) *stream.ReadMessage {
	return &stream.ReadMessage{
		Message: stream.Message{
			Header: stream.Header{Key: key},
			Body:   stream.Body{Payload: []byte(payload)},
		},
	}
}

func testPartition(startMillis int64, key string) partition.ID {
	return partition.ID{
		Start: time.UnixMilli(startMillis),
		End:   time.UnixMilli(startMillis + 60000),
		Key:   key,
	}
}

func TestStore_ApplyEvent(t *testing.T) {
	store := NewStore(sumAggregator())
	p1 := testPartition(0, "k1")
	p2 := testPartition(0, "k2")

	require.NoError(t, store.ApplyEvent(p1, buildMsg("k1", "10")))
	require.NoError(t, store.ApplyEvent(p1, buildMsg("k1", "20")))
	require.NoError(t, store.ApplyEvent(p2, buildMsg("k2", "5")))
	assert.Equal(t, 2, store.Len())

	acc, ok := store.Get(p1)
	require.True(t, ok)
	assert.Equal(t, int64(30), acc.(*sumAcc).total)
	assert.Equal(t, int64(2), acc.(*sumAcc).count)
}

func TestStore_ApplyEventDiscardsOnError(t *testing.T) {
	store := NewStore(sumAggregator())
	p1 := testPartition(0, "k1")

	require.NoError(t, store.ApplyEvent(p1, buildMsg("k1", "10")))

	err := store.ApplyEvent(p1, buildMsg("k1", "not a number"))
	var applyErr aggregate.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "add", applyErr.Op)
	assert.Equal(t, p1.String(), applyErr.PartitionID)

	// The partial accumulator is gone; the next event starts fresh.
	_, ok := store.Get(p1)
	assert.False(t, ok)
	require.NoError(t, store.ApplyEvent(p1, buildMsg("k1", "7")))
	acc, ok := store.Get(p1)
	require.True(t, ok)
	assert.Equal(t, int64(7), acc.(*sumAcc).total)
}

func TestStore_Merge(t *testing.T) {
	a := NewStore(sumAggregator())
	b := NewStore(sumAggregator())
	p1 := testPartition(0, "k1")
	p2 := testPartition(0, "k2")

	require.NoError(t, a.ApplyEvent(p1, buildMsg("k1", "10")))
	require.NoError(t, b.ApplyEvent(p1, buildMsg("k1", "20")))
	require.NoError(t, b.ApplyEvent(p2, buildMsg("k2", "5")))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, 2, a.Len())

	acc, ok := a.Get(p1)
	require.True(t, ok)
	assert.Equal(t, int64(30), acc.(*sumAcc).total)

	adopted, ok := a.Get(p2)
	require.True(t, ok)
	assert.Equal(t, int64(5), adopted.(*sumAcc).total)

	// Merging a store into itself or merging nil is a no-op.
	require.NoError(t, a.Merge(a))
	require.NoError(t, a.Merge(nil))
	assert.Equal(t, 2, a.Len())
}

func TestStore_MergeKeyMismatchIsDetectable(t *testing.T) {
	corrupting := &aggregate.AggregateFns{
		AddFn: func(acc aggregate.Accumulator, msg *stream.ReadMessage) (aggregate.Accumulator, error) {
			return &sumAcc{key: msg.Key}, nil
		},
		MergeFn: func(a aggregate.Accumulator, b aggregate.Accumulator) (aggregate.Accumulator, error) {
			return nil, aggregate.KeyMismatchError{AKey: a.Key(), BKey: b.Key()}
		},
		FinalizeFn: func(id partition.ID, acc aggregate.Accumulator) (stream.Message, error) {
			return stream.Message{}, nil
		},
	}

	a := NewStore(corrupting)
	b := NewStore(corrupting)
	p1 := testPartition(0, "k1")
	require.NoError(t, a.ApplyEvent(p1, buildMsg("k1", "1")))
	require.NoError(t, b.ApplyEvent(p1, buildMsg("k1", "1")))

	err := a.Merge(b)
	var mismatchErr aggregate.KeyMismatchError
	assert.ErrorAs(t, err, &mismatchErr)
}

func TestStore_EvictAndList(t *testing.T) {
	store := NewStore(sumAggregator())
	p1 := testPartition(60000, "k2")
	p2 := testPartition(0, "k1")
	p3 := testPartition(0, "k2")

	require.NoError(t, store.ApplyEvent(p1, buildMsg("k2", "1")))
	require.NoError(t, store.ApplyEvent(p2, buildMsg("k1", "2")))
	require.NoError(t, store.ApplyEvent(p3, buildMsg("k2", "3")))

	assert.Equal(t, []partition.ID{p2, p3, p1}, store.ListPartitions())

	acc, ok := store.Evict(p2)
	require.True(t, ok)
	assert.Equal(t, int64(2), acc.(*sumAcc).total)
	assert.Equal(t, 2, store.Len())

	_, ok = store.Evict(p2)
	assert.False(t, ok)
}

func TestMergeStores(t *testing.T) {
	ctx := context.Background()
	p1 := testPartition(0, "k1")
	p2 := testPartition(0, "k2")

	stores := make(chan *Store, 3)
	for i := 0; i < 3; i++ {
		partial := NewStore(sumAggregator())
		require.NoError(t, partial.ApplyEvent(p1, buildMsg("k1", "10")))
		if i == 0 {
			require.NoError(t, partial.ApplyEvent(p2, buildMsg("k2", "4")))
		}
		stores <- partial
	}
	close(stores)

	merged, err := MergeStores(ctx, stores, sumAggregator())
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())

	acc, ok := merged.Get(p1)
	require.True(t, ok)
	assert.Equal(t, int64(30), acc.(*sumAcc).total)
	assert.Equal(t, int64(3), acc.(*sumAcc).count)

	acc, ok = merged.Get(p2)
	require.True(t, ok)
	assert.Equal(t, int64(4), acc.(*sumAcc).total)
}

func TestMergeStores_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stores := make(chan *Store)
	_, err := MergeStores(ctx, stores, sumAggregator())
	assert.ErrorIs(t, err, context.Canceled)
}
