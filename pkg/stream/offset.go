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
	"strconv"
)

// DefaultPartitionIdx is the partition index used by single-partition readers
// and writers.
const DefaultPartitionIdx = int32(0)

// SimpleStringOffset is an Offset convenient function for implementations without needing AckIt() when offset is a string.
type SimpleStringOffset func() string

func (so SimpleStringOffset) String() string {
	return so()
}

func (so SimpleStringOffset) Sequence() (int64, error) {
	return strconv.ParseInt(so(), 10, 64)
}

func (so SimpleStringOffset) AckIt() error {
	return nil
}

func (so SimpleStringOffset) NoAck() error {
	return nil
}

func (so SimpleStringOffset) PartitionIdx() int32 {
	return DefaultPartitionIdx
}

// SimpleIntOffset is an Offset convenient function for implementations without needing AckIt() when offset is a int64.
type SimpleIntOffset func() int64

func (si SimpleIntOffset) String() string {
	return strconv.FormatInt(si(), 10)
}

func (si SimpleIntOffset) Sequence() (int64, error) {
	return si(), nil
}

func (si SimpleIntOffset) AckIt() error {
	return nil
}

func (si SimpleIntOffset) NoAck() error {
	return nil
}

func (si SimpleIntOffset) PartitionIdx() int32 {
	return DefaultPartitionIdx
}
