// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	metricsNamespace = "service_upgrader"

	// JobName is the pushgateway job the metrics are pushed under.
	JobName = "service-upgrader"
)

// Collector is a prometheus.Collector that collects metrics about
// calls to the Rancher API and upgrade sessions. It also implements the
// request recorder of the juju http client.
type Collector struct {
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	apiErrors          *prometheus.CounterVec
	sessions           *prometheus.CounterVec
	sessionElapsed     prometheus.Gauge
	sessionTicks       prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "api_requests_total",
				Help:      "The number of requests made to the Rancher API.",
			}, []string{"method", "code"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "api_request_duration_seconds",
				Help:      "The round trip time of requests to the Rancher API.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			}, []string{"method"},
		),
		apiErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "api_errors_total",
				Help:      "The number of requests to the Rancher API that got no response.",
			}, []string{"method"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_total",
				Help:      "The number of upgrade sessions by outcome.",
			}, []string{"outcome"},
		),
		sessionElapsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "session_elapsed_seconds",
				Help:      "The time spent polling in the last upgrade session.",
			},
		),
		sessionTicks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "session_polls",
				Help:      "The number of status polls in the last upgrade session.",
			},
		),
	}
}

// Record is part of the jujuhttp.RequestRecorder interface.
func (c *Collector) Record(method string, _ *url.URL, res *http.Response, rtt time.Duration) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(res.StatusCode)).Inc()
	c.apiRequestDuration.WithLabelValues(method).Observe(rtt.Seconds())
}

// RecordError is part of the jujuhttp.RequestRecorder interface.
func (c *Collector) RecordError(method string, _ *url.URL, _ error) {
	c.apiErrors.WithLabelValues(method).Inc()
}

// ObserveSession records the result of an upgrade session.
func (c *Collector) ObserveSession(outcome string, elapsed time.Duration, polls int) {
	c.sessions.WithLabelValues(outcome).Inc()
	c.sessionElapsed.Set(elapsed.Seconds())
	c.sessionTicks.Set(float64(polls))
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.apiRequests.Describe(ch)
	c.apiRequestDuration.Describe(ch)
	c.apiErrors.Describe(ch)
	c.sessions.Describe(ch)
	c.sessionElapsed.Describe(ch)
	c.sessionTicks.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.apiRequests.Collect(ch)
	c.apiRequestDuration.Collect(ch)
	c.apiErrors.Collect(ch)
	c.sessions.Collect(ch)
	c.sessionElapsed.Collect(ch)
	c.sessionTicks.Collect(ch)
}

// Push sends the collected metrics to the pushgateway at gatewayURL,
// grouped by service id.
func Push(ctx context.Context, gatewayURL, serviceID string, collector prometheus.Collector) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return errors.Trace(err)
	}
	pusher := push.New(gatewayURL, JobName).Gatherer(registry)
	if serviceID != "" {
		pusher = pusher.Grouping("service", serviceID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return errors.Annotatef(err, "pushing metrics to %s", gatewayURL)
	}
	return nil
}
