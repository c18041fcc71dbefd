package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	passesStarted    prometheus.Counter
	passesCompleted  *prometheus.CounterVec
	recipientsLoaded prometheus.Counter
	emailsSent       prometheus.Counter
	skippedTotal     prometheus.Counter
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
	lastPassSent     prometheus.Gauge
}

// NewPrometheusSink creates a sink and registers its collectors with reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		passesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailysend_passes_started_total",
			Help: "Total number of dispatch passes started.",
		}),
		passesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailysend_passes_completed_total",
			Help: "Total number of dispatch passes completed, by whether the daily limit stopped them.",
		}, []string{"cap_reached"}),
		recipientsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailysend_recipients_loaded_total",
			Help: "Total number of recipient rows handed to dispatch passes.",
		}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailysend_emails_sent_total",
			Help: "Total number of emails accepted by a provider.",
		}),
		skippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailysend_recipients_skipped_total",
			Help: "Recipients skipped because the current minute did not match the send time.",
		}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailysend_deliveries_total",
			Help: "Delivery attempts by outcome and failing stage.",
		}, []string{"outcome", "stage"}),
		deliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dailysend_delivery_duration_seconds",
			Help:    "SMTP delivery latency in seconds (excludes pacing).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		lastPassSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dailysend_pass_sent",
			Help: "Sent count of the most recently updated pass.",
		}),
	}

	s.register(reg, s.passesStarted, "dailysend_passes_started_total")
	s.register(reg, s.passesCompleted, "dailysend_passes_completed_total")
	s.register(reg, s.recipientsLoaded, "dailysend_recipients_loaded_total")
	s.register(reg, s.emailsSent, "dailysend_emails_sent_total")
	s.register(reg, s.skippedTotal, "dailysend_recipients_skipped_total")
	s.register(reg, s.deliveriesTotal, "dailysend_deliveries_total")
	s.register(reg, s.deliveryDuration, "dailysend_delivery_duration_seconds")
	s.register(reg, s.lastPassSent, "dailysend_pass_sent")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: failed to register collector", "name", name, "err", err)
	}
}

func (s *PrometheusSink) PassStarted(recipients int) {
	s.passesStarted.Inc()
	s.recipientsLoaded.Add(float64(recipients))
}

func (s *PrometheusSink) PassCompleted(emailsSent int, capReached bool) {
	s.passesCompleted.WithLabelValues(strconv.FormatBool(capReached)).Inc()
}

func (s *PrometheusSink) RecipientSkipped() {
	s.skippedTotal.Inc()
}

func (s *PrometheusSink) DeliveryCompleted(outcome, stage string, d time.Duration) {
	s.deliveriesTotal.WithLabelValues(outcome, stage).Inc()
	s.deliveryDuration.Observe(d.Seconds())
	if outcome == OutcomeSuccess {
		s.emailsSent.Inc()
	}
}

func (s *PrometheusSink) ProgressUpdate(sent int) {
	s.lastPassSent.Set(float64(sent))
}
