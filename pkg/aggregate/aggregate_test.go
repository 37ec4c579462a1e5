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

package aggregate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/stream"
)

type countAcc struct {
	key   string
	count int64
}

func (c *countAcc) Key() string { return c.key }

func TestAggregateFns(t *testing.T) {
	fns := &AggregateFns{
		AddFn: func(acc Accumulator, msg *stream.ReadMessage) (Accumulator, error) {
			if acc == nil {
				return &countAcc{key: msg.Key, count: 1}, nil
			}
			current := acc.(*countAcc)
			return &countAcc{key: current.key, count: current.count + 1}, nil
		},
		MergeFn: func(a Accumulator, b Accumulator) (Accumulator, error) {
			x, y := a.(*countAcc), b.(*countAcc)
			if x.key != y.key {
				return nil, KeyMismatchError{AKey: x.key, BKey: y.key}
			}
			return &countAcc{key: x.key, count: x.count + y.count}, nil
		},
		FinalizeFn: func(id partition.ID, acc Accumulator) (stream.Message, error) {
			return stream.Message{
				Header: stream.Header{ID: id.String(), Key: acc.Key()},
				Body:   stream.Body{Payload: []byte(fmt.Sprintf("%d", acc.(*countAcc).count))},
			}, nil
		},
	}

	msg := &stream.ReadMessage{Message: stream.Message{Header: stream.Header{Key: "k1"}}}

	acc, err := fns.Add(nil, msg)
	require.NoError(t, err)
	acc, err = fns.Add(acc, msg)
	require.NoError(t, err)

	merged, err := fns.Merge(acc, &countAcc{key: "k1", count: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), merged.(*countAcc).count)

	_, err = fns.Merge(acc, &countAcc{key: "k2", count: 3})
	var mismatchErr KeyMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, `cannot merge accumulators of different keys "k1" and "k2"`, mismatchErr.Error())

	id := partition.ID{Start: time.UnixMilli(0), End: time.UnixMilli(1000), Key: "k1"}
	result, err := fns.Finalize(id, merged)
	require.NoError(t, err)
	assert.Equal(t, "k1", result.Key)
	assert.Equal(t, []byte("5"), result.Payload)
}

func TestApplyError(t *testing.T) {
	inner := errors.New("boom")
	err := ApplyError{
		Op:          "add",
		PartitionID: partition.ID{Start: time.UnixMilli(0), End: time.UnixMilli(1000), Key: "k1"}.String(),
		Err:         inner,
	}
	assert.Equal(t, "add failed on partition 0-1000-k1: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
