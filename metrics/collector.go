package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Collector interface {
	ApiErrorOccurred()
	ServerPanicked(err error)
	OperationSubmitted(chainID uint64)
	OperationDropped(chainID uint64)
	OperationSponsored(chainID uint64)
	RateLimited(caller string)
	MeasureRequestDuration(start time.Time, method string)
}

type DefaultCollector struct {
	apiErrorsCounter     prometheus.Counter
	serverPanicsCounters *prometheus.CounterVec
	submittedCounters    *prometheus.CounterVec
	droppedCounters      *prometheus.CounterVec
	sponsoredCounters    *prometheus.CounterVec
	rateLimitedCounters  *prometheus.CounterVec
	requestDurations     *prometheus.HistogramVec
}

func NewCollector(logger zerolog.Logger) Collector {
	apiErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Total number of errors returned by the endpoint resolvers",
	})

	serverPanicsCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_server_panics_total",
		Help: "Total number of panics handled by server",
	}, []string{"error"})

	submittedCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "user_operations_submitted_total",
		Help: "Total number of user operations broadcast to the EntryPoint",
	}, []string{"chain_id"})

	droppedCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "user_operations_dropped_total",
		Help: "Total number of user operations that failed before broadcast",
	}, []string{"chain_id"})

	sponsoredCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "user_operations_sponsored_total",
		Help: "Total number of user operations with paymaster sponsorship",
	}, []string{"chain_id"})

	rateLimitedCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_rate_limited_total",
		Help: "Total number of requests rejected by the per-caller quota",
	}, []string{"caller"})

	requestDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Duration of requests made to the endpoint resolvers",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	metrics := []prometheus.Collector{
		apiErrors,
		serverPanicsCounters,
		submittedCounters,
		droppedCounters,
		sponsoredCounters,
		rateLimitedCounters,
		requestDurations,
	}
	if err := registerMetrics(logger, metrics...); err != nil {
		logger.Info().Msg("using noop collector as metric register failed")
		return NewNoopCollector()
	}

	return &DefaultCollector{
		apiErrorsCounter:     apiErrors,
		serverPanicsCounters: serverPanicsCounters,
		submittedCounters:    submittedCounters,
		droppedCounters:      droppedCounters,
		sponsoredCounters:    sponsoredCounters,
		rateLimitedCounters:  rateLimitedCounters,
		requestDurations:     requestDurations,
	}
}

func registerMetrics(logger zerolog.Logger, metrics ...prometheus.Collector) error {
	for _, m := range metrics {
		if err := prometheus.Register(m); err != nil {
			logger.Err(err).Msg("failed to register metric")
			return err
		}
	}

	return nil
}

func (c *DefaultCollector) ApiErrorOccurred() {
	c.apiErrorsCounter.Inc()
}

func (c *DefaultCollector) ServerPanicked(err error) {
	c.serverPanicsCounters.With(prometheus.Labels{"error": err.Error()}).Inc()
}

func (c *DefaultCollector) OperationSubmitted(chainID uint64) {
	c.submittedCounters.With(prometheus.Labels{"chain_id": chainLabel(chainID)}).Inc()
}

func (c *DefaultCollector) OperationDropped(chainID uint64) {
	c.droppedCounters.With(prometheus.Labels{"chain_id": chainLabel(chainID)}).Inc()
}

func (c *DefaultCollector) OperationSponsored(chainID uint64) {
	c.sponsoredCounters.With(prometheus.Labels{"chain_id": chainLabel(chainID)}).Inc()
}

func (c *DefaultCollector) RateLimited(caller string) {
	c.rateLimitedCounters.With(prometheus.Labels{"caller": caller}).Inc()
}

func (c *DefaultCollector) MeasureRequestDuration(start time.Time, method string) {
	duration := time.Since(start)
	c.requestDurations.With(prometheus.Labels{"method": method}).Observe(duration.Seconds())
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
