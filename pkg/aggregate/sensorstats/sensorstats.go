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

// Package sensorstats aggregates sensor readings into per-sensor window
// averages. Readings are keyed by the sensor id; each window materializes the
// record count and the average temperature rounded to two decimal places.
package sensorstats

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/stream"
)

// KeyField is the payload field holding the partition key.
const KeyField = "id"

// TimestampField is the payload field holding the event time in epoch
// milliseconds.
const TimestampField = "timestamp"

// Reading is one sensor measurement.
type Reading struct {
	ID          string  `json:"id"`
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
}

// Accumulator sums the measurements of one sensor within a window.
type Accumulator struct {
	ID         string
	Sum        float64
	NumRecords int64
}

var _ aggregate.Accumulator = (*Accumulator)(nil)

// Key returns the sensor id.
func (a *Accumulator) Key() string {
	return a.ID
}

// Summary is the materialized per-window average. Timestamp is the window end
// in epoch milliseconds.
type Summary struct {
	ID             string  `json:"id"`
	Timestamp      int64   `json:"timestamp"`
	NumRecords     int64   `json:"num_records"`
	AvgTemperature float64 `json:"avg_temperature"`
}

// Aggregator implements aggregate.AggregateFunction over sensor readings.
type Aggregator struct{}

var _ aggregate.AggregateFunction = (*Aggregator)(nil)

// NewAggregator returns a sensor statistics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add folds one reading into the accumulator.
func (a *Aggregator) Add(acc aggregate.Accumulator, msg *stream.ReadMessage) (aggregate.Accumulator, error) {
	var reading Reading
	if err := json.Unmarshal(msg.Payload, &reading); err != nil {
		return nil, err
	}
	if acc == nil {
		return &Accumulator{ID: reading.ID, Sum: reading.Temperature, NumRecords: 1}, nil
	}
	current, ok := acc.(*Accumulator)
	if !ok {
		return nil, fmt.Errorf("unexpected accumulator type %T", acc)
	}
	if current.ID != reading.ID {
		return nil, aggregate.KeyMismatchError{AKey: current.ID, BKey: reading.ID}
	}
	return &Accumulator{
		ID:         current.ID,
		Sum:        current.Sum + reading.Temperature,
		NumRecords: current.NumRecords + 1,
	}, nil
}

// Merge combines two partial sums of the same sensor.
func (a *Aggregator) Merge(x aggregate.Accumulator, y aggregate.Accumulator) (aggregate.Accumulator, error) {
	xa, ok := x.(*Accumulator)
	if !ok {
		return nil, fmt.Errorf("unexpected accumulator type %T", x)
	}
	ya, ok := y.(*Accumulator)
	if !ok {
		return nil, fmt.Errorf("unexpected accumulator type %T", y)
	}
	if xa.ID != ya.ID {
		return nil, aggregate.KeyMismatchError{AKey: xa.ID, BKey: ya.ID}
	}
	return &Accumulator{
		ID:         xa.ID,
		Sum:        xa.Sum + ya.Sum,
		NumRecords: xa.NumRecords + ya.NumRecords,
	}, nil
}

// Finalize projects the accumulator into the window summary. The average is
// rounded to two decimal places and the summary carries the window end as its
// timestamp.
func (a *Aggregator) Finalize(id partition.ID, acc aggregate.Accumulator) (stream.Message, error) {
	current, ok := acc.(*Accumulator)
	if !ok {
		return stream.Message{}, fmt.Errorf("unexpected accumulator type %T", acc)
	}
	if current.NumRecords == 0 {
		return stream.Message{}, fmt.Errorf("empty accumulator for partition %s", id.String())
	}
	summary := Summary{
		ID:             current.ID,
		Timestamp:      id.End.UnixMilli(),
		NumRecords:     current.NumRecords,
		AvgTemperature: math.Round(current.Sum/float64(current.NumRecords)*100) / 100,
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return stream.Message{}, err
	}
	return stream.Message{
		Header: stream.Header{
			MessageInfo: stream.MessageInfo{EventTime: id.End.Add(-1 * time.Millisecond)},
			ID:          id.String(),
			Key:         current.ID,
		},
		Body: stream.Body{Payload: payload},
	}, nil
}
