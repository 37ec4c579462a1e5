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

package kafka

import (
	"fmt"
	"strconv"
	"strings"
)

// kafkaOffset implements stream.Offset. The topic is carried along because
// committing an offset back to the consumer group needs it.
type kafkaOffset struct {
	offset       int64
	partitionIdx int32
	topic        string
}

func (k *kafkaOffset) String() string {
	return toOffset(k.topic, k.partitionIdx, k.offset)
}

func (k *kafkaOffset) Sequence() (int64, error) {
	return k.offset, nil
}

// AckIt acking is taken care by the consumer group
func (k *kafkaOffset) AckIt() error {
	// NOOP
	return nil
}

func (k *kafkaOffset) NoAck() error {
	return nil
}

func (k *kafkaOffset) PartitionIdx() int32 {
	return k.partitionIdx
}

func (k *kafkaOffset) Topic() string {
	return k.topic
}

// toOffset formats a (topic, partition, offset) triple as topic:partition:offset.
func toOffset(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

// offsetFrom parses an offset identifier produced by toOffset.
func offsetFrom(identifier string) (string, int32, int64, error) {
	parts := strings.Split(identifier, ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed offset identifier %q", identifier)
	}
	partition, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed partition in offset identifier %q, %w", identifier, err)
	}
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed offset in offset identifier %q, %w", identifier, err)
	}
	return parts[0], int32(partition), offset, nil
}
