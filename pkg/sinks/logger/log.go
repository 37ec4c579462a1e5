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

// Package logger implements a stream.BufferWriter that prints every result.
// It is mainly used for local runs and debugging.
package logger

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/stream"
)

// ToLog prints the output to a log sink.
type ToLog struct {
	name         string
	pipelineName string
	logger       *zap.SugaredLogger
}

var _ stream.BufferWriter = (*ToLog)(nil)

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(pipelineName string, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{
		name:         "logger-sink",
		pipelineName: pipelineName,
		logger:       logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	return toLog, nil
}

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

// Write writes to the log.
func (t *ToLog) Write(_ context.Context, messages []stream.Message) ([]stream.Offset, []error) {
	prefix := "(" + t.GetName() + ")"
	for _, message := range messages {
		logSinkWriteCount.With(map[string]string{metrics.LabelPipeline: t.pipelineName, "sink": t.name}).Inc()
		log.Println(prefix, " Payload - ", string(message.Payload), " Key - ", message.Key, " EventTime - ", message.EventTime.UnixMilli())
	}
	return nil, make([]error, len(messages))
}

func (t *ToLog) Close() error {
	return nil
}
