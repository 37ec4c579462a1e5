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

// Package assign extracts the event time and the partition key from raw
// payloads. Extraction is total and side-effect free and depends only on the
// record content, never on the wall clock, which keeps pipelines
// deterministic and replayable.
package assign

import (
	"fmt"
	"time"
)

// TimestampAssigner extracts the event time from a raw payload.
type TimestampAssigner interface {
	ExtractTimestamp(payload []byte) (time.Time, error)
}

// TimestampAssignerFunc is an adapter to allow the use of ordinary functions
// as a TimestampAssigner.
type TimestampAssignerFunc func(payload []byte) (time.Time, error)

func (f TimestampAssignerFunc) ExtractTimestamp(payload []byte) (time.Time, error) {
	return f(payload)
}

// KeyExtractor extracts the partition key from a raw payload.
type KeyExtractor interface {
	ExtractKey(payload []byte) (string, error)
}

// KeyExtractorFunc is an adapter to allow the use of ordinary functions as a
// KeyExtractor.
type KeyExtractorFunc func(payload []byte) (string, error)

func (f KeyExtractorFunc) ExtractKey(payload []byte) (string, error) {
	return f(payload)
}

// ExtractionError is returned when the timestamp or the key cannot be
// extracted from a record. Depending on the pipeline policy the record is
// dropped and counted, or the pipeline halts.
type ExtractionError struct {
	Field   string
	Message string
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract field %q: %s", e.Field, e.Message)
}
