// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LogEvents = "event"
	LogStates = "state"
)

var (
	initOnce sync.Once

	factsLoggedCounter      *prometheus.CounterVec
	duplicateInstantCounter *prometheus.CounterVec
	hookFailuresCounter     prometheus.Counter
	queryDurationMetric     *prometheus.HistogramVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		factsLoggedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_facts_logged_total",
				Help: "Total number of facts appended, by log and discriminator.",
			},
			[]string{"log", "discriminator"},
		)

		duplicateInstantCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_duplicate_instants_total",
				Help: "Total number of appends rejected by the (timestamp, user, discriminator) constraint.",
			},
			[]string{"log"},
		)

		hookFailuresCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_hook_failures_total",
				Help: "Total number of post event hook failures.",
			},
		)

		queryDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_query_duration_seconds",
				Help:    "Duration of tracker queries in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		)

		prometheus.MustRegister(
			factsLoggedCounter,
			duplicateInstantCounter,
			hookFailuresCounter,
			queryDurationMetric,
		)

		// Ensure vectors are visible at /metrics before first increment.
		for _, log := range []string{LogEvents, LogStates} {
			duplicateInstantCounter.WithLabelValues(log)
		}
	})
}

func IncFactLogged(log string, discriminator int) {
	Init()
	factsLoggedCounter.WithLabelValues(log, strconv.Itoa(discriminator)).Inc()
}

func IncDuplicateInstant(log string) {
	Init()
	duplicateInstantCounter.WithLabelValues(log).Inc()
}

func IncHookFailure() {
	Init()
	hookFailuresCounter.Inc()
}

func ObserveQueryDuration(query string, d time.Duration) {
	Init()
	queryDurationMetric.WithLabelValues(query).Observe(d.Seconds())
}
