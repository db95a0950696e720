package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the compliance service. All
// methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	AttestationSubmissions *prometheus.CounterVec
	ValidationFailures     *prometheus.CounterVec
	ConsentChanges         *prometheus.CounterVec
	BlockedWithdrawals     prometheus.Counter
	AuditAppendFailures    *prometheus.CounterVec
	AuditEventsPublished   prometheus.Counter
	AuditPublishFailures   *prometheus.CounterVec
	VerificationLookups    *prometheus.CounterVec
	AccessDenied           *prometheus.CounterVec
	RequestLatency         *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttestationSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_attestation_submissions_total",
			Help: "Accepted attestation submissions by outcome (insert or update)",
		}, []string{"outcome"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_validation_failures_total",
			Help: "Payloads rejected by validation",
		}, []string{"kind"}),
		ConsentChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_consent_changes_total",
			Help: "Consent updates and withdrawals applied",
		}, []string{"operation"}),
		BlockedWithdrawals: f.NewCounter(prometheus.CounterOpts{
			Name: "lexlink_consent_blocked_withdrawals_total",
			Help: "Attempts to withdraw a required consent grant",
		}),
		AuditAppendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_audit_append_failures_total",
			Help: "Audit events that could not be persisted",
		}, []string{"kind"}),
		AuditEventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "lexlink_audit_events_published_total",
			Help: "Audit events published to the event stream",
		}),
		AuditPublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_audit_publish_failures_total",
			Help: "Audit events dropped before reaching the event stream",
		}, []string{"reason"}),
		VerificationLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_verification_lookups_total",
			Help: "Bar registry verification lookups by cache result",
		}, []string{"result"}),
		AccessDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_access_denied_total",
			Help: "Requests rejected by the access guard",
		}, []string{"reason"}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexlink_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncAttestationSubmission(isUpdate bool) {
	if m == nil {
		return
	}
	outcome := "insert"
	if isUpdate {
		outcome = "update"
	}
	m.AttestationSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncValidationFailure(kind string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncConsentChange(operation string) {
	if m == nil {
		return
	}
	m.ConsentChanges.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncBlockedWithdrawal() {
	if m == nil {
		return
	}
	m.BlockedWithdrawals.Inc()
}

func (m *Metrics) IncAuditAppendFailure(kind string) {
	if m == nil {
		return
	}
	m.AuditAppendFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncAuditPublished() {
	if m == nil {
		return
	}
	m.AuditEventsPublished.Inc()
}

func (m *Metrics) IncAuditPublishFailure(reason string) {
	if m == nil {
		return
	}
	m.AuditPublishFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncVerificationLookup(result string) {
	if m == nil {
		return
	}
	m.VerificationLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAccessDenied(reason string) {
	if m == nil {
		return
	}
	m.AccessDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(method, route, statusClass(status)).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
