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

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/flowagg/pkg/metrics"
)

// Drop reasons
const (
	reasonLate            = "late"
	reasonExtractionError = "extraction_error"
	reasonAggregateError  = "aggregate_error"
)

// readMessagesCount is used to indicate the number of messages read
var readMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_reader",
	Name:      "read_total",
	Help:      "Total number of Messages Read",
}, []string{metrics.LabelPipeline, "buffer"})

// readMessagesError is used to indicate the number of read errors
var readMessagesError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_reader",
	Name:      "read_error_total",
	Help:      "Total number of Read Errors",
}, []string{metrics.LabelPipeline, "buffer"})

// ackMessagesCount is used to indicate the number of messages acknowledged
var ackMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_reader",
	Name:      "ack_total",
	Help:      "Total number of Messages Acknowledged",
}, []string{metrics.LabelPipeline, "buffer"})

// ackMessageError is used to indicate the errors while acknowledging messages
var ackMessageError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_reader",
	Name:      "ack_error_total",
	Help:      "Total number of Acknowledge Errors",
}, []string{metrics.LabelPipeline, "buffer"})

// droppedMessagesCount is used to indicate the number of messages dropped
var droppedMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_data_forward",
	Name:      "dropped_total",
	Help:      "Total number of Messages Dropped",
}, []string{metrics.LabelPipeline, metrics.LabelReason})

// resultMessagesCount is used to indicate the number of window results written
var resultMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_writer",
	Name:      "write_total",
	Help:      "Total number of window results written",
}, []string{metrics.LabelPipeline, "buffer"})

// writeMessagesError is used to indicate the number of errors while writing results
var writeMessagesError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce_writer",
	Name:      "write_error_total",
	Help:      "Total number of Write Errors",
}, []string{metrics.LabelPipeline, "buffer"})

// platformError is used to indicate the number of internal errors
var platformError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reduce",
	Name:      "platform_error_total",
	Help:      "Total number of platform Errors",
}, []string{metrics.LabelPipeline})

// activeWindowsCount is used to indicate the number of active windows
var activeWindowsCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "reduce",
	Name:      "active_windows",
	Help:      "Total number of active windows",
}, []string{metrics.LabelPipeline})

// closedWindowsCount is used to indicate the number of closed windows
var closedWindowsCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "reduce",
	Name:      "closed_windows",
	Help:      "Total number of closed windows",
}, []string{metrics.LabelPipeline})
