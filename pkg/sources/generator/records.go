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

package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/flowagg/pkg/aggregate/flightstats"
	"github.com/numaproj/flowagg/pkg/aggregate/sensorstats"
	"github.com/numaproj/flowagg/pkg/assign"
)

// RecordFactory synthesizes payloads of one record shape.
type RecordFactory interface {
	// Key maps a key index to the key embedded in the record.
	Key(i int32) string
	// Record synthesizes one payload for the given key and event time.
	Record(key string, eventTime time.Time) ([]byte, error)
}

// FlightRecords returns a factory producing flight records consumable by the
// flightstats aggregator.
func FlightRecords() RecordFactory {
	return flightRecords{}
}

type flightRecords struct{}

func (flightRecords) Key(i int32) string {
	return fmt.Sprintf("user%d@example.com", i)
}

func (flightRecords) Record(key string, eventTime time.Time) ([]byte, error) {
	// flights take anywhere between 30 minutes and 8 hours
	duration := time.Duration(30+rand.Int63n(451)) * time.Minute
	return json.Marshal(flightstats.Flight{
		EmailAddress:  key,
		DepartureTime: eventTime.Format(assign.DefaultTimestampLayout),
		ArrivalTime:   eventTime.Add(duration).Format(assign.DefaultTimestampLayout),
	})
}

// SensorRecords returns a factory producing sensor readings consumable by the
// sensorstats aggregator.
func SensorRecords() RecordFactory {
	return sensorRecords{}
}

type sensorRecords struct{}

func (sensorRecords) Key(i int32) string {
	return fmt.Sprintf("sensor-%d", i)
}

func (sensorRecords) Record(key string, eventTime time.Time) ([]byte, error) {
	return json.Marshal(sensorstats.Reading{
		ID:          key,
		Timestamp:   eventTime.UnixMilli(),
		Temperature: 15 + rand.Float64()*15,
	})
}
