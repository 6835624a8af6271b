// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "channelpass"

var (
	MembershipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "membership_transitions_total",
		Help:      "Membership status transitions.",
	}, []string{"from", "to"})

	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_calls_total",
		Help:      "Channel access gateway calls by action and result.",
	}, []string{"action", "result"})

	EnforcementCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enforcement_cycles_total",
		Help:      "Enforcement cycles by kind (full, reminders).",
	}, []string{"kind"})

	EnforcementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enforcement_record_errors_total",
		Help:      "Per-membership failures during enforcement cycles.",
	}, []string{"kind"})

	EnforcementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "enforcement_cycle_duration_seconds",
		Help:      "Duration of enforcement cycles.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Processed payment events by outcome.",
	}, []string{"outcome"})

	BroadcastMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_messages_total",
		Help:      "Broadcast deliveries by result.",
	}, []string{"result"})

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_runs_total",
		Help:      "Scheduled job executions by job and result.",
	}, []string{"job", "result"})

	SchedulerMisfires = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_misfires_total",
		Help:      "Runs that started later than their misfire grace window.",
	}, []string{"job"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification deliveries by template and result.",
	}, []string{"template", "result"})
)

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
