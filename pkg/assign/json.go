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

package assign

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/goccy/go-json"
)

// DefaultTimestampLayout is the timestamp layout of the builtin flight
// records.
const DefaultTimestampLayout = "2006-01-02 15:04:05"

// JSONTimestampAssigner extracts the event time from a named JSON field which
// holds either epoch milliseconds or a timestamp string. With a layout
// configured the string must match it, otherwise the format is detected,
// reading unzoned timestamps as UTC.
type JSONTimestampAssigner struct {
	field  string
	layout string
}

var _ TimestampAssigner = (*JSONTimestampAssigner)(nil)

// NewJSONTimestampAssigner returns a JSONTimestampAssigner for the given
// field.
func NewJSONTimestampAssigner(field string, layout string) *JSONTimestampAssigner {
	return &JSONTimestampAssigner{field: field, layout: layout}
}

func (a *JSONTimestampAssigner) ExtractTimestamp(payload []byte) (time.Time, error) {
	raw, err := lookupField(payload, a.field)
	if err != nil {
		return time.Time{}, err
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis), nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, ExtractionError{Field: a.field, Message: "neither epoch milliseconds nor a string"}
	}
	var ts time.Time
	if a.layout != "" {
		ts, err = time.Parse(a.layout, str)
	} else {
		ts, err = dateparse.ParseIn(str, time.UTC)
	}
	if err != nil {
		return time.Time{}, ExtractionError{Field: a.field, Message: err.Error()}
	}
	return ts, nil
}

// JSONKeyExtractor extracts the partition key from a named JSON field. String
// fields are used as-is, other scalar fields are used in their raw JSON form.
type JSONKeyExtractor struct {
	field string
}

var _ KeyExtractor = (*JSONKeyExtractor)(nil)

// NewJSONKeyExtractor returns a JSONKeyExtractor for the given field.
func NewJSONKeyExtractor(field string) *JSONKeyExtractor {
	return &JSONKeyExtractor{field: field}
}

func (k *JSONKeyExtractor) ExtractKey(payload []byte) (string, error) {
	raw, err := lookupField(payload, k.field)
	if err != nil {
		return "", err
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if str == "" {
			return "", ExtractionError{Field: k.field, Message: "empty key"}
		}
		return str, nil
	}
	if len(raw) == 0 || raw[0] == '{' || raw[0] == '[' {
		return "", ExtractionError{Field: k.field, Message: "not a scalar"}
	}
	return string(raw), nil
}

func lookupField(payload []byte, field string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, ExtractionError{Field: field, Message: err.Error()}
	}
	raw, ok := fields[field]
	if !ok {
		return nil, ExtractionError{Field: field, Message: "field not found"}
	}
	return raw, nil
}
