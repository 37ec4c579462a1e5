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

package reduce

import "fmt"

// LateEventPolicy controls what happens to events arriving behind the
// watermark.
type LateEventPolicy string

const (
	// LateDrop silently drops late events.
	LateDrop LateEventPolicy = "drop"
	// LateDropWithMetric drops late events and counts them.
	LateDropWithMetric LateEventPolicy = "dropWithMetric"
)

// ExtractionErrorPolicy controls what happens when the timestamp or the key
// cannot be extracted from a payload.
type ExtractionErrorPolicy string

const (
	// ExtractionDrop drops the offending event and keeps going.
	ExtractionDrop ExtractionErrorPolicy = "drop"
	// ExtractionHalt stops the pipeline on the first offending event.
	ExtractionHalt ExtractionErrorPolicy = "halt"
)

// Options for forwarding the messages into the reduce loop
type Options struct {
	// readBatchSize is the default batch size
	readBatchSize int64
	// workers is the number of partitions the key space is sharded into
	workers int
	// channelBufferSize is the capacity of each worker's inbound channel
	channelBufferSize int
	lateEventPolicy   LateEventPolicy
	extractionPolicy  ExtractionErrorPolicy
	// flushOnShutdown emits the partial accumulators on a clean stop
	flushOnShutdown bool
}

type Option func(*Options) error

func DefaultOptions() *Options {
	return &Options{
		readBatchSize:     500,
		workers:           4,
		channelBufferSize: 100,
		lateEventPolicy:   LateDropWithMetric,
		extractionPolicy:  ExtractionDrop,
		flushOnShutdown:   true,
	}
}

// WithReadBatchSize sets the read batch size
func WithReadBatchSize(f int64) Option {
	return func(o *Options) error {
		if f <= 0 {
			return fmt.Errorf("invalid read batch size %d", f)
		}
		o.readBatchSize = f
		return nil
	}
}

// WithWorkers sets the number of reduce workers
func WithWorkers(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return fmt.Errorf("invalid worker count %d", n)
		}
		o.workers = n
		return nil
	}
}

// WithChannelBufferSize sets the capacity of the worker channels
func WithChannelBufferSize(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return fmt.Errorf("invalid channel buffer size %d", n)
		}
		o.channelBufferSize = n
		return nil
	}
}

// WithLateEventPolicy sets the late event handling policy
func WithLateEventPolicy(p LateEventPolicy) Option {
	return func(o *Options) error {
		switch p {
		case LateDrop, LateDropWithMetric:
			o.lateEventPolicy = p
			return nil
		default:
			return fmt.Errorf("unknown late event policy %q", p)
		}
	}
}

// WithExtractionErrorPolicy sets the extraction failure handling policy
func WithExtractionErrorPolicy(p ExtractionErrorPolicy) Option {
	return func(o *Options) error {
		switch p {
		case ExtractionDrop, ExtractionHalt:
			o.extractionPolicy = p
			return nil
		default:
			return fmt.Errorf("unknown extraction error policy %q", p)
		}
	}
}

// WithFlushOnShutdown sets whether a clean stop flushes the open windows
func WithFlushOnShutdown(flush bool) Option {
	return func(o *Options) error {
		o.flushOnShutdown = flush
		return nil
	}
}
