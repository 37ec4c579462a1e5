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

// Package flightstats aggregates flight records into per-traveler statistics.
// Records are keyed by the traveler's email address; each window materializes
// the number of flights and the total flight duration in whole minutes.
package flightstats

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/flowagg/pkg/aggregate"
	"github.com/numaproj/flowagg/pkg/assign"
	"github.com/numaproj/flowagg/pkg/partition"
	"github.com/numaproj/flowagg/pkg/stream"
)

// KeyField is the payload field holding the partition key.
const KeyField = "email_address"

// TimestampField is the payload field holding the event time.
const TimestampField = "departure_time"

// Flight is the subset of the flight record the aggregator needs.
type Flight struct {
	EmailAddress  string `json:"email_address"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
}

// Statistics is the running flight statistics of one traveler.
type Statistics struct {
	EmailAddress        string `json:"email_address"`
	TotalFlightDuration int64  `json:"total_flight_duration"`
	NumberOfFlights     int64  `json:"number_of_flights"`
}

var _ aggregate.Accumulator = (*Statistics)(nil)

// Key returns the traveler's email address.
func (s *Statistics) Key() string {
	return s.EmailAddress
}

// FromFlight builds the statistics of a single flight record. The flight
// duration is the timestamp subtraction in whole seconds floor-divided
// to minutes.
func FromFlight(payload []byte) (*Statistics, error) {
	var flight Flight
	if err := json.Unmarshal(payload, &flight); err != nil {
		return nil, err
	}
	departure, err := time.Parse(assign.DefaultTimestampLayout, flight.DepartureTime)
	if err != nil {
		return nil, fmt.Errorf("invalid departure_time: %w", err)
	}
	arrival, err := time.Parse(assign.DefaultTimestampLayout, flight.ArrivalTime)
	if err != nil {
		return nil, fmt.Errorf("invalid arrival_time: %w", err)
	}
	durationSeconds := int64(arrival.Sub(departure) / time.Second)
	return &Statistics{
		EmailAddress:        flight.EmailAddress,
		TotalFlightDuration: durationSeconds / 60,
		NumberOfFlights:     1,
	}, nil
}

// Merge combines the statistics with another traveler's partial statistics of
// the same email address.
func (s *Statistics) Merge(that *Statistics) (*Statistics, error) {
	if s.EmailAddress != that.EmailAddress {
		return nil, aggregate.KeyMismatchError{AKey: s.EmailAddress, BKey: that.EmailAddress}
	}
	return &Statistics{
		EmailAddress:        s.EmailAddress,
		TotalFlightDuration: s.TotalFlightDuration + that.TotalFlightDuration,
		NumberOfFlights:     s.NumberOfFlights + that.NumberOfFlights,
	}, nil
}

// Aggregator implements aggregate.AggregateFunction over flight records.
type Aggregator struct{}

var _ aggregate.AggregateFunction = (*Aggregator)(nil)

// NewAggregator returns a flight statistics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add folds one flight record into the accumulator.
func (a *Aggregator) Add(acc aggregate.Accumulator, msg *stream.ReadMessage) (aggregate.Accumulator, error) {
	incoming, err := FromFlight(msg.Payload)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return incoming, nil
	}
	current, ok := acc.(*Statistics)
	if !ok {
		return nil, fmt.Errorf("unexpected accumulator type %T", acc)
	}
	return current.Merge(incoming)
}

// Merge combines two partial statistics of the same traveler.
func (a *Aggregator) Merge(x aggregate.Accumulator, y aggregate.Accumulator) (aggregate.Accumulator, error) {
	xs, ok := x.(*Statistics)
	if !ok {
		return nil, fmt.Errorf("unexpected accumulator type %T", x)
	}
	ys, ok := y.(*Statistics)
	if !ok {
		return nil, fmt.Errorf("unexpected accumulator type %T", y)
	}
	return xs.Merge(ys)
}

// Finalize projects the statistics into the result message. The result
// carries the window's end minus one millisecond as its event time.
func (a *Aggregator) Finalize(id partition.ID, acc aggregate.Accumulator) (stream.Message, error) {
	stats, ok := acc.(*Statistics)
	if !ok {
		return stream.Message{}, fmt.Errorf("unexpected accumulator type %T", acc)
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return stream.Message{}, err
	}
	return stream.Message{
		Header: stream.Header{
			MessageInfo: stream.MessageInfo{EventTime: id.End.Add(-1 * time.Millisecond)},
			ID:          id.String(),
			Key:         stats.EmailAddress,
		},
		Body: stream.Body{Payload: payload},
	}, nil
}
