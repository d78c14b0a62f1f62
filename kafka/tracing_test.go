package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/loipv/hubcore/triage"
)

// useRecorder installs a recording tracer provider and a trace context
// propagator for the duration of the test
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
	return recorder
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingPropagatesThroughRecord(t *testing.T) {
	recorder := useRecorder(t)

	client := newFakeProducer(1)
	p := newTestProducer(t, client, WithTracing(&TracingConfig{Enabled: true}))
	require.NoError(t, p.Send(context.Background(), ptr("drop-1"), ptr("wallet-a")))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	rec := newRecord(msgs[0])
	require.NotEmpty(t, rec.Headers["traceparent"])

	tracer := NewTracingService(&TracingConfig{Enabled: true})
	_, endSpan := tracer.StartConsumerSpan(context.Background(), "mints@test", rec, 2)
	endSpan(errors.New("handler failed"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	produced, consumed := spans[0], spans[1]
	assert.Equal(t, "drops publish", produced.Name())
	assert.Equal(t, trace.SpanKindProducer, produced.SpanKind())
	assert.Equal(t, trace.SpanKindConsumer, consumed.SpanKind())
	assert.Equal(t, produced.SpanContext().TraceID(), consumed.Parent().TraceID())
	assert.Equal(t, produced.SpanContext().SpanID(), consumed.Parent().SpanID())

	assert.Equal(t, codes.Error, consumed.Status().Code)
	attempt, ok := attr(consumed, MessagingRetryAttemptKey)
	require.True(t, ok)
	assert.Equal(t, int64(2), attempt.AsInt64())
	group, ok := attr(consumed, MessagingKafkaConsumerGroupKey)
	require.True(t, ok)
	assert.Equal(t, "mints@test", group.AsString())
}

func TestConsumerSpanPerAttempt(t *testing.T) {
	recorder := useRecorder(t)
	h := newConsumerHarness(t, ConsumerWithTracing(&TracingConfig{Enabled: true}))

	calls := 0
	run := h.start(t, fastRetries, func(ctx context.Context, ev mintEvent) error {
		assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
		calls++
		if calls == 1 {
			return triage.AsTransient(errors.New("rpc busy"))
		}
		return nil
	})

	h.client.push(record("drops", "drop-1", "wallet-a"))

	require.Eventually(t, func() bool { return h.outcomes(OutcomeSuccess) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, ignoreCanceled(run.stop()))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestKafkaHeaderCarrierReplacesExisting(t *testing.T) {
	msg := record("drops", "k", "v")
	carrier := &kafkaHeaderCarrier{msg: msg}

	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")

	assert.Len(t, msg.Headers, 1)
	assert.Equal(t, "b", carrier.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
	assert.Empty(t, carrier.Get("missing"))
}
