package kafka

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/loipv/hubcore/triage"
)

// Handler task outcomes reported by Metrics
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeDropped   = "dropped"
	OutcomeFatal     = "fatal"
	OutcomePanic     = "panic"
)

// Metrics holds the Prometheus collectors of producers and consumers
type Metrics struct {
	Sent               *prometheus.CounterVec
	SendErrors         *prometheus.CounterVec
	PartitionRefreshes *prometheus.CounterVec
	Records            *prometheus.CounterVec
	RecvErrors         *prometheus.CounterVec
	HandlerOutcomes    *prometheus.CounterVec
	InFlight           *prometheus.GaugeVec
	Backoffs           *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_producer", Name: "sent_total",
			Help: "Records acknowledged by the broker",
		}, []string{"topic"}),
		SendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_producer", Name: "send_errors_total",
			Help: "Failed sends by severity",
		}, []string{"topic", "severity"}),
		PartitionRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_producer", Name: "partition_refreshes_total",
			Help: "Partition count lookups by result",
		}, []string{"topic", "result"}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_consumer", Name: "records_total",
			Help: "Records decoded into events",
		}, []string{"group", "topic"}),
		RecvErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_consumer", Name: "recv_errors_total",
			Help: "Receive and decode failures by kind",
		}, []string{"group", "kind"}),
		HandlerOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_consumer", Name: "handler_outcomes_total",
			Help: "Handler invocations by outcome",
		}, []string{"group", "outcome"}),
		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hub", Subsystem: "kafka_consumer", Name: "tasks_in_flight",
			Help: "Handler tasks currently running",
		}, []string{"group"}),
		Backoffs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_consumer", Name: "stream_backoffs_total",
			Help: "Delays taken by the stream-level backoff",
		}, []string{"group"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub", Subsystem: "kafka_consumer", Name: "reconnects_total",
			Help: "Record streams opened after the first",
		}, []string{"group"}),
	}
}

func (m *Metrics) recordSent(topic string) {
	m.Sent.WithLabelValues(topic).Inc()
}

func (m *Metrics) recordSendError(topic string, s triage.Severity) {
	m.SendErrors.WithLabelValues(topic, s.String()).Inc()
}

func (m *Metrics) partitionRefresh(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PartitionRefreshes.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) recordRecvError(group string, err error) {
	kind := "unknown"
	var re *RecvError
	if errors.As(err, &re) {
		kind = re.Kind.String()
	}
	m.RecvErrors.WithLabelValues(group, kind).Inc()
}
