// Package metrics exposes Prometheus collectors for voice accrual,
// tier reconciliation and background jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xpbot"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	voiceEvents     *prometheus.CounterVec
	xpGranted       prometheus.Counter
	voiceSeconds    prometheus.Counter
	levelUps        prometheus.Counter
	clockAnomalies  prometheus.Counter
	roleMutations   *prometheus.CounterVec
	reconcileErrors *prometheus.CounterVec
	openSessions    prometheus.Gauge
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

// New registers the collectors with registry. A nil registry returns nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)

	return &Metrics{
		voiceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_events_total",
			Help:      "Voice events processed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		xpGranted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_granted_total",
			Help:      "XP granted for voice time",
		}),
		voiceSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_seconds_credited_total",
			Help:      "Voice seconds credited to members",
		}),
		levelUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Levels crossed by members",
		}),
		clockAnomalies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_anomalies_total",
			Help:      "Voice events whose timestamp preceded the session start",
		}),
		roleMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_mutations_total",
			Help:      "Tier role mutations, by op and result",
		}, []string{"op", "result"}),
		reconcileErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors_total",
			Help:      "Tier reconciliations that did not fully apply, by kind",
		}, []string{"kind"}),
		openSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_voice_sessions",
			Help:      "Open voice sessions seen by the last tick",
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduler job runs, by job and result",
		}, []string{"job", "result"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// VoiceEvent counts one processed voice event.
func (m *Metrics) VoiceEvent(kind string, ok bool) {
	if m == nil {
		return
	}
	m.voiceEvents.WithLabelValues(kind, result(ok)).Inc()
}

// Credited records seconds and XP credited by one event.
func (m *Metrics) Credited(seconds, xp int64) {
	if m == nil {
		return
	}
	if seconds > 0 {
		m.voiceSeconds.Add(float64(seconds))
	}
	if xp > 0 {
		m.xpGranted.Add(float64(xp))
	}
}

// LevelUps adds n crossed levels.
func (m *Metrics) LevelUps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.levelUps.Add(float64(n))
}

// ClockAnomaly counts one non-monotonic voice event.
func (m *Metrics) ClockAnomaly() {
	if m == nil {
		return
	}
	m.clockAnomalies.Inc()
}

// RoleMutation counts one add/remove call.
func (m *Metrics) RoleMutation(op string, ok bool) {
	if m == nil {
		return
	}
	m.roleMutations.WithLabelValues(op, result(ok)).Inc()
}

// ReconcileError counts a reconciliation that was rejected or partially applied.
func (m *Metrics) ReconcileError(kind string) {
	if m == nil {
		return
	}
	m.reconcileErrors.WithLabelValues(kind).Inc()
}

// OpenSessions sets the open session gauge.
func (m *Metrics) OpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

// JobRun records a scheduler job execution.
func (m *Metrics) JobRun(job string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(ok)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
