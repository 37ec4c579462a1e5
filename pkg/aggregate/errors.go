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

package aggregate

import "fmt"

// KeyMismatchError is returned when two accumulators of different keys are
// merged. This is a programming or configuration error and is never
// recovered, the pipeline halts with a diagnostic.
type KeyMismatchError struct {
	AKey string
	BKey string
}

func (e KeyMismatchError) Error() string {
	return fmt.Sprintf("cannot merge accumulators of different keys %q and %q", e.AKey, e.BKey)
}

// ApplyError is returned when the domain supplied add, merge or finalize
// failed. The affected partition entry is discarded rather than retried,
// because the accumulator state may be inconsistent.
type ApplyError struct {
	Op          string
	PartitionID string
	Err         error
}

func (e ApplyError) Error() string {
	return fmt.Sprintf("%s failed on partition %s: %v", e.Op, e.PartitionID, e.Err)
}

func (e ApplyError) Unwrap() error {
	return e.Err
}
