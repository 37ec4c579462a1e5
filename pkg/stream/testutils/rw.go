package testutils

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/flowagg/pkg/stream"
)

// PayloadForTest is a dummy payload for testing.
type PayloadForTest struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// BuildTestWriteMessages builds test stream.Message which can be used for testing.
// Event times are spaced one minute apart starting at startTime.
func BuildTestWriteMessages(count int64, startTime time.Time) []stream.Message {
	var messages = make([]stream.Message, 0, count)
	for i := int64(0); i < count; i++ {
		tmpTime := startTime.Add(time.Duration(i) * time.Minute)
		result, _ := json.Marshal(PayloadForTest{
			Key:   fmt.Sprintf("payload_%d", i),
			Value: i,
		})
		messages = append(messages,
			stream.Message{
				Header: stream.Header{
					MessageInfo: stream.MessageInfo{
						EventTime: tmpTime,
					},
					ID: fmt.Sprintf("%d", i),
				},
				Body: stream.Body{Payload: result},
			},
		)
	}

	return messages
}

// BuildTestReadMessages builds test stream.ReadMessage which can be used for testing.
func BuildTestReadMessages(count int64, startTime time.Time) []stream.ReadMessage {
	writeMessages := BuildTestWriteMessages(count, startTime)
	var readMessages = make([]stream.ReadMessage, count)

	for idx, writeMessage := range writeMessages {
		id := writeMessage.Header.ID
		readMessages[idx] = stream.ReadMessage{
			Message:    writeMessage,
			ReadOffset: stream.SimpleStringOffset(func() string { return fmt.Sprintf("read_%s", id) }),
		}
	}

	return readMessages
}
