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

package metrics

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/flowagg"
	"github.com/numaproj/flowagg/pkg/shared/logging"
	sharedqueue "github.com/numaproj/flowagg/pkg/shared/queue"
	"github.com/numaproj/flowagg/pkg/shared/util"
	"github.com/numaproj/flowagg/pkg/stream"
)

const (
	// DefaultAddress is the listen address of the metrics server.
	DefaultAddress = ":2469"
	// DefaultLookbackSeconds is the default lookback for pending calculation.
	DefaultLookbackSeconds = 120
)

// timestampedPending pairs a pending count with the second it was sampled.
type timestampedPending struct {
	pending   int64
	timestamp int64
}

// fixedLookbackSeconds are the periods the pending gauge is exposed for,
// besides the configured default lookback.
var fixedLookbackSeconds = map[string]int64{"1m": 60, "5m": 300, "15m": 900}

// pending is the per-period pending messages gauge.
var pending = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "pipeline",
	Name:      "pending_messages",
	Help:      "A Gauge to keep track of the total number of pending messages, per lookback period",
}, []string{LabelPipeline, LabelPeriod, LabelPartitionName})

// metricsServer runs an HTTP server to:
// 1. Expose metrics;
// 2. Serve an endpoint to execute health checks
type metricsServer struct {
	pipelineName string
	address      string
	lagReaders   map[string]stream.LagReader
	// lookbackSeconds is the look back seconds for pending calculation
	lookbackSeconds     int64
	lagCheckingInterval time.Duration
	refreshInterval     time.Duration
	// partitionPendingInfo keeps the pending sample history per lag reader
	partitionPendingInfo map[string]*sharedqueue.OverflowQueue[timestampedPending]
	// Functions that health check executes
	healthCheckExecutors []func() error
}

type Option func(*metricsServer)

// WithAddress sets the listen address
func WithAddress(addr string) Option {
	return func(m *metricsServer) {
		m.address = addr
	}
}

// WithLagReaders sets the lag readers
func WithLagReaders(r map[string]stream.LagReader) Option {
	return func(m *metricsServer) {
		m.lagReaders = r
	}
}

// WithRefreshInterval sets how often to refresh the pending information
func WithRefreshInterval(d time.Duration) Option {
	return func(m *metricsServer) {
		m.refreshInterval = d
	}
}

// WithLookbackSeconds sets lookback seconds for pending calculation
func WithLookbackSeconds(seconds int64) Option {
	return func(m *metricsServer) {
		m.lookbackSeconds = seconds
	}
}

// WithHealthCheckExecutor appends a health check executor
func WithHealthCheckExecutor(f func() error) Option {
	return func(m *metricsServer) {
		m.healthCheckExecutors = append(m.healthCheckExecutors, f)
	}
}

// NewMetricsOptions returns a metrics option list.
func NewMetricsOptions(ctx context.Context, healthCheckers []HealthChecker, readers []stream.LagReader) []Option {
	var metricsOpts []Option

	if util.LookupEnvStringOr("FLOWAGG_HEALTH_CHECK_DISABLED", "false") != "true" {
		for _, hc := range healthCheckers {
			metricsOpts = append(metricsOpts, WithHealthCheckExecutor(func() error {
				cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				return hc.IsHealthy(cctx)
			}))
		}
	}

	lagReaders := make(map[string]stream.LagReader)
	for _, reader := range readers {
		lagReaders[reader.GetName()] = reader
	}
	if len(lagReaders) > 0 {
		metricsOpts = append(metricsOpts, WithLagReaders(lagReaders))
	}
	return metricsOpts
}

// NewMetricsServer returns a Prometheus metrics server instance, which can be used to start an HTTP service to expose Prometheus metrics.
func NewMetricsServer(pipelineName string, opts ...Option) *metricsServer {
	m := new(metricsServer)
	m.pipelineName = pipelineName
	m.address = DefaultAddress
	m.refreshInterval = 5 * time.Second     // Default refresh interval
	m.lagCheckingInterval = 3 * time.Second // Default lag checking interval
	m.lookbackSeconds = DefaultLookbackSeconds
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.partitionPendingInfo = make(map[string]*sharedqueue.OverflowQueue[timestampedPending])
	for name := range m.lagReaders {
		m.partitionPendingInfo[name] = sharedqueue.New[timestampedPending](1800)
	}
	return m
}

// buildupPendingInfo samples the pending counts from the lag readers.
func (ms *metricsServer) buildupPendingInfo(ctx context.Context) {
	if len(ms.lagReaders) == 0 {
		return
	}
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(ms.lagCheckingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, lagReader := range ms.lagReaders {
				if p, err := lagReader.Pending(ctx); err != nil {
					log.Errorw("Failed to get pending messages", zap.Error(err))
				} else if p != stream.PendingNotAvailable {
					ms.partitionPendingInfo[name].Append(timestampedPending{pending: p, timestamp: time.Now().Unix()})
				}
			}
		}
	}
}

// exposePendingMetrics sets the pending gauge for all the lookback periods.
func (ms *metricsServer) exposePendingMetrics(ctx context.Context) {
	if len(ms.lagReaders) == 0 {
		return
	}
	lookbackSecondsMap := map[string]int64{"default": ms.lookbackSeconds}
	for k, v := range fixedLookbackSeconds {
		lookbackSecondsMap[k] = v
	}
	ticker := time.NewTicker(ms.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name := range ms.lagReaders {
				for n, i := range lookbackSecondsMap {
					if p := ms.calculatePending(i, name); p != stream.PendingNotAvailable {
						pending.WithLabelValues(ms.pipelineName, n, name).Set(float64(p))
					}
				}
			}
		}
	}
}

// calculatePending returns the average pending of the last seconds, or
// stream.PendingNotAvailable when no sample falls in the period.
func (ms *metricsServer) calculatePending(seconds int64, name string) int64 {
	result := stream.PendingNotAvailable
	items := ms.partitionPendingInfo[name].Items()
	total := int64(0)
	num := int64(0)
	now := time.Now().Unix()
	for _, i := range items {
		if now-i.timestamp < seconds {
			total += i.pending
			num++
		}
	}
	if num > 0 {
		result = total / num
	}
	return result
}

// Start function starts the HTTP service to expose metrics, it returns a shutdown function and an error if any
func (ms *metricsServer) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	v := flowagg.GetVersion()
	BuildInfo.WithLabelValues("flowagg", ms.pipelineName, v.Version, v.Platform).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, ex := range ms.healthCheckExecutors {
			if err := ex(); err != nil {
				log.Errorw("Failed to execute health check", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	pprofEnabled := util.LookupEnvBoolOr("FLOWAGG_DEBUG", false) || util.LookupEnvBoolOr("FLOWAGG_PPROF", false)
	if pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Not enabling pprof debug endpoints")
	}

	go ms.buildupPendingInfo(ctx)
	go ms.exposePendingMetrics(ctx)

	httpServer := &http.Server{
		Addr:    ms.address,
		Handler: mux,
	}

	go func() {
		log.Info("Starting metrics HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Failed to listen-and-serve on metrics server", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return httpServer.Shutdown, nil
}
