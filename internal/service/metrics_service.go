package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusops/invigil-api/internal/dto"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the allocation engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	runTotal           *prometheus.CounterVec
	sessionOutcome     *prometheus.CounterVec
	allocationsCreated prometheus.Counter
	reservesSelected   prometheus.Counter
	conflictsDetected  prometheus.Gauge
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_runs_total",
		Help: "Total allocation runs by mode and outcome",
	}, []string{"mode", "outcome"})

	sessionOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_sessions_total",
		Help: "Total per-session allocation outcomes",
	}, []string{"outcome"})

	allocationsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_duties_created_total",
		Help: "Total invigilator duties persisted by allocation runs",
	})

	reservesSelected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_reserves_selected_total",
		Help: "Total reserve invigilators selected by allocation runs",
	})

	conflictsDetected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_conflicts_detected",
		Help: "Conflicts reported by the most recent detection pass",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, runTotal, sessionOutcome,
		allocationsCreated, reservesSelected, conflictsDetected, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		runTotal:           runTotal,
		sessionOutcome:     sessionOutcome,
		allocationsCreated: allocationsCreated,
		reservesSelected:   reservesSelected,
		conflictsDetected:  conflictsDetected,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one handled request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveAllocationRun records the outcome of one allocation or preview run.
func (s *MetricsService) ObserveAllocationRun(preview bool, result *dto.AllocationRunResult) {
	if result == nil {
		return
	}
	mode := "allocate"
	if preview {
		mode = "preview"
	}
	outcome := "failed"
	if result.Success {
		outcome = "succeeded"
	}
	s.runTotal.WithLabelValues(mode, outcome).Inc()
	for _, session := range result.Sessions {
		if session.Success {
			s.sessionOutcome.WithLabelValues("succeeded").Inc()
		} else {
			s.sessionOutcome.WithLabelValues("failed").Inc()
		}
	}
	if !preview {
		s.allocationsCreated.Add(float64(result.Summary.AllocationsCreated))
		s.reservesSelected.Add(float64(result.Summary.ReservesSelected))
	}
	s.conflictsDetected.Set(float64(result.Summary.ConflictsDetected))
}
