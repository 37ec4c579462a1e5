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

// Package redis implements a stream.BufferWriter that stores every result
// under a key derived from its window and partition key.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg/pkg/config"
	"github.com/numaproj/flowagg/pkg/metrics"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	"github.com/numaproj/flowagg/pkg/stream"
)

// RedisSink is a sink to publish the results to redis.
type RedisSink struct {
	name         string
	pipelineName string
	client       *redis.Client
	ttl          time.Duration
	logger       *zap.SugaredLogger
}

var _ stream.BufferWriter = (*RedisSink)(nil)

type Option func(sink *RedisSink) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(rs *RedisSink) error {
		rs.logger = log
		return nil
	}
}

// NewRedisSink returns RedisSink type. The client connects lazily on the
// first Write.
func NewRedisSink(pipelineName string, c config.RedisSinkConfig, opts ...Option) (*RedisSink, error) {
	rs := &RedisSink{
		name:         "redis-sink",
		pipelineName: pipelineName,
		ttl:          c.TTL(),
		logger:       logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(rs); err != nil {
			return nil, err
		}
	}
	opt, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url, %w", err)
	}
	rs.client = redis.NewClient(opt)
	return rs, nil
}

// GetName returns the name.
func (rs *RedisSink) GetName() string {
	return rs.name
}

// Write writes to the redis sink. A zero TTL keeps the entries forever.
func (rs *RedisSink) Write(ctx context.Context, messages []stream.Message) ([]stream.Offset, []error) {
	errs := make([]error, len(messages))
	for idx, msg := range messages {
		key := rs.keyFor(msg)
		if err := rs.client.Set(ctx, key, msg.Payload, rs.ttl).Err(); err != nil {
			redisSinkWriteErrors.With(map[string]string{metrics.LabelPipeline: rs.pipelineName, "sink": rs.name}).Inc()
			rs.logger.Errorw("Set failed", zap.String("key", key), zap.Error(err))
			errs[idx] = err
			continue
		}
		redisSinkWriteCount.With(map[string]string{metrics.LabelPipeline: rs.pipelineName, "sink": rs.name}).Inc()
	}
	return nil, errs
}

// keyFor derives the redis key of a result. The message ID already carries
// the window bounds and the partition key.
func (rs *RedisSink) keyFor(msg stream.Message) string {
	return fmt.Sprintf("%s:%s", rs.pipelineName, msg.ID)
}

// IsHealthy pings the redis server.
func (rs *RedisSink) IsHealthy(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

func (rs *RedisSink) Close() error {
	return rs.client.Close()
}
