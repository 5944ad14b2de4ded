package ai

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Provider with a span per call, a request duration
// histogram and token usage counters.
type Instrumented struct {
	next   Provider
	name   string
	tracer trace.Tracer

	duration         metric.Float64Histogram
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	totalTokens      metric.Int64Counter
}

func Instrument(next Provider, name string, tracer trace.Tracer, meter metric.Meter) (*Instrumented, error) {
	duration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Upstream request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	counter := func(n string) (metric.Int64Counter, error) {
		return meter.Int64Counter("llm.usage."+n, metric.WithDescription("LLM usage metric: "+n))
	}
	prompt, err := counter("prompt_tokens")
	if err != nil {
		return nil, err
	}
	completion, err := counter("completion_tokens")
	if err != nil {
		return nil, err
	}
	total, err := counter("total_tokens")
	if err != nil {
		return nil, err
	}
	return &Instrumented{
		next:             next,
		name:             name,
		tracer:           tracer,
		duration:         duration,
		promptTokens:     prompt,
		completionTokens: completion,
		totalTokens:      total,
	}, nil
}

func (p *Instrumented) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	ctx, span := p.tracer.Start(ctx, "ai.provider.chat", trace.WithAttributes(
		attribute.String("ai.provider", p.name),
		attribute.String("ai.model", req.Model),
		attribute.Int("ai.messages", len(req.Messages)),
	))
	defer span.End()

	start := time.Now()
	res, err := p.next.Chat(ctx, req)
	p.record(ctx, "chat", start, err)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	if u := res.Usage; u != nil {
		attrs := metric.WithAttributes(attribute.String("ai.model", req.Model))
		p.promptTokens.Add(ctx, int64(u.PromptTokens), attrs)
		p.completionTokens.Add(ctx, int64(u.CompletionTokens), attrs)
		p.totalTokens.Add(ctx, int64(u.TotalTokens), attrs)
	}
	return res, nil
}

func (p *Instrumented) ListModels(ctx context.Context) ([]RawModel, error) {
	ctx, span := p.tracer.Start(ctx, "ai.provider.models", trace.WithAttributes(
		attribute.String("ai.provider", p.name),
	))
	defer span.End()

	start := time.Now()
	models, err := p.next.ListModels(ctx)
	p.record(ctx, "models", start, err)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("ai.models", len(models)))
	return models, nil
}

func (p *Instrumented) record(ctx context.Context, op string, start time.Time, err error) {
	p.duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("ai.provider", p.name),
		attribute.String("ai.operation", op),
		attribute.Bool("error", err != nil),
	))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var se *StatusError
	if errors.As(err, &se) {
		span.SetAttributes(attribute.Int("http.response.status_code", se.Status))
	}
}
