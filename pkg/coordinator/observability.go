package coordinator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig configures the ambient otel instrumentation carried across
// every Coordinate call.
type TracerConfig struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64
}

const instrumentationName = "github.com/massgen-go/orchestrator/pkg/coordinator"

// observability bundles the tracer/meter instruments one Coordinator uses
// across calls.
type observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	coordinations metric.Int64Counter
	roundsTotal   metric.Int64Counter
	duration      metric.Float64Histogram
}

func newObservability(cfg TracerConfig) *observability {
	tp := otel.GetTracerProvider()
	if !cfg.Enabled {
		tp = noopTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	o := &observability{tracer: tracer, meter: meter}

	var err error
	o.coordinations, err = meter.Int64Counter(
		"massgen_orchestrator_coordinations_total",
		metric.WithDescription("Coordination calls finished, by outcome."),
	)
	if err != nil {
		o.coordinations = noopCounter{}
	}
	o.roundsTotal, err = meter.Int64Counter(
		"massgen_orchestrator_agent_rounds_total",
		metric.WithDescription("Agent Runner attempts started, retries included."),
	)
	if err != nil {
		o.roundsTotal = noopCounter{}
	}
	o.duration, err = meter.Float64Histogram(
		"massgen_orchestrator_coordination_duration_seconds",
		metric.WithDescription("Wall-clock duration of a coordination call."),
	)
	if err != nil {
		o.duration = noopHistogram{}
	}
	return o
}

// noopTracerProvider returns a tracer provider that drops all spans, used
// when tracing is disabled (falls back to a no-op provider).
func noopTracerProvider() trace.TracerProvider {
	return noop.NewTracerProvider()
}

// startCoordination opens the top-level span for one Coordinate call.
func (o *observability) startCoordination(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "coordinate", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
}

// startRunnerAttempt opens a child span for one Agent Runner attempt (one
// backend Stream call, retries included).
func (o *observability) startRunnerAttempt(ctx context.Context, agentID string, attempt int) (context.Context, trace.Span) {
	o.roundsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent.id", agentID)))
	return o.tracer.Start(ctx, "agent_runner.attempt", trace.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("attempt", attempt),
	))
}

func (o *observability) recordOutcome(ctx context.Context, outcome string, seconds float64) {
	o.coordinations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	o.duration.Record(ctx, seconds, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// noopCounter/noopHistogram satisfy the metric interfaces without a live
// meter, for the (practically unreachable) case instrument creation fails.
type noopCounter struct{}

func (noopCounter) Add(context.Context, int64, ...metric.AddOption) {}

type noopHistogram struct{}

func (noopHistogram) Record(context.Context, float64, ...metric.RecordOption) {}
