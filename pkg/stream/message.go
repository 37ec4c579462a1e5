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

package stream

import (
	"time"
)

// MessageInfo is the event-time information of the payload.
type MessageInfo struct {
	// EventTime is the event time of the message, extracted from the payload
	// by a timestamp assigner. It is never derived from the arrival time.
	EventTime time.Time
	// IsLate indicates that the message belongs to a window which was already
	// closed by the watermark when the message arrived (assignment happens at
	// ingestion).
	IsLate bool
}

// Header is the header of the message
type Header struct {
	MessageInfo
	// ID uniquely identifies the message. It is usually populated from the
	// offset, if an offset is available.
	ID string
	// Key is the partition key the message was grouped under.
	Key string
}

// Body is the body of the message
type Body struct {
	Payload []byte
}

// Message is the unit of data flowing through the pipeline.
type Message struct {
	Header
	Body
}

// ReadMessage is the message read from a buffer.
type ReadMessage struct {
	Message
	ReadOffset Offset
	// Watermark is the watermark snapshot taken when the message was ingested.
	Watermark time.Time
}

// ToReadMessage converts Message to a ReadMessage by providing the offset and watermark
func (m *Message) ToReadMessage(ot Offset, wm time.Time) *ReadMessage {
	return &ReadMessage{Message: *m, ReadOffset: ot, Watermark: wm}
}
