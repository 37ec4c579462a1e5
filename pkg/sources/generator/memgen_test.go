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
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/numaproj/flowagg/pkg/aggregate/flightstats"
	"github.com/numaproj/flowagg/pkg/aggregate/sensorstats"
	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/stream"
)

func testGeneratorConfig() config.GeneratorSourceConfig {
	return config.GeneratorSourceConfig{RPU: 5, DurationMs: 10, KeyCount: 2}
}

func TestRead(t *testing.T) {
	mgen, err := NewMemGen("test-pipeline", testGeneratorConfig(), FlightRecords(), WithReadTimeout(2*time.Second))
	assert.NoError(t, err)
	assert.Equal(t, "generator-source", mgen.GetName())
	assert.NoError(t, mgen.Start())
	defer func() { _ = mgen.Close() }()

	msgs, err := mgen.Read(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, 5, len(msgs))
	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
		// the generated payload must be consumable by the aggregator
		stats, err := flightstats.FromFlight(m.Payload)
		assert.NoError(t, err)
		assert.Contains(t, []string{"user0@example.com", "user1@example.com"}, stats.Key())
	}

	pending, err := mgen.Pending(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, stream.PendingNotAvailable, pending)
}

func TestStop(t *testing.T) {
	mgen, err := NewMemGen("test-pipeline", testGeneratorConfig(), SensorRecords(), WithReadTimeout(2*time.Second))
	assert.NoError(t, err)
	assert.NoError(t, mgen.Start())

	// wait until the loop has produced at least one record
	msgs, err := mgen.Read(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(msgs))

	assert.NoError(t, mgen.Close())
	select {
	case <-mgen.doneCh:
	default:
		t.Fatal("expected the generator loop to have exited")
	}
}

func TestCloseWithoutStart(t *testing.T) {
	mgen, err := NewMemGen("test-pipeline", testGeneratorConfig(), FlightRecords())
	assert.NoError(t, err)
	assert.NoError(t, mgen.Close())
}

func TestNewMemGen_NoFactory(t *testing.T) {
	_, err := NewMemGen("test-pipeline", testGeneratorConfig(), nil)
	assert.Error(t, err)
}

func TestJitterBackdatesEventTimes(t *testing.T) {
	c := testGeneratorConfig()
	c.JitterMs = 60000
	mgen, err := NewMemGen("test-pipeline", c, SensorRecords(), WithReadTimeout(2*time.Second))
	assert.NoError(t, err)
	assert.NoError(t, mgen.Start())
	defer func() { _ = mgen.Close() }()

	msgs, err := mgen.Read(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, 5, len(msgs))
	now := time.Now()
	for _, m := range msgs {
		var reading sensorstats.Reading
		assert.NoError(t, json.Unmarshal(m.Payload, &reading))
		ts := time.UnixMilli(reading.Timestamp)
		assert.False(t, ts.After(now))
		assert.True(t, ts.After(now.Add(-2*time.Minute)))
	}
}
