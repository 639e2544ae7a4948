// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"

	"github.com/absmach/qgate/broker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/absmach/qgate/broker"

var _ broker.Service = (*tracingMiddleware)(nil)

type tracingMiddleware struct {
	tracer trace.Tracer
	svc    broker.Service
}

// NewTracing creates tracing middleware that starts one span per call
// using the global tracer provider.
func NewTracing(svc broker.Service) broker.Service {
	return &tracingMiddleware{
		tracer: otel.Tracer(tracerName),
		svc:    svc,
	}
}

func (tm *tracingMiddleware) CreateQueue(ctx context.Context, creator broker.Client, name string) (broker.QueueView, error) {
	ctx, span := tm.start(ctx, "CreateQueue", creator, name)
	defer span.End()

	view, err := tm.svc.CreateQueue(ctx, creator, name)
	record(span, err)
	return view, err
}

func (tm *tracingMiddleware) Queue(ctx context.Context, name string) (broker.QueueView, error) {
	ctx, span := tm.tracer.Start(ctx, "Queue", trace.WithAttributes(attribute.String("queue", name)))
	defer span.End()

	view, err := tm.svc.Queue(ctx, name)
	record(span, err)
	return view, err
}

func (tm *tracingMiddleware) Queues(ctx context.Context) map[string]broker.QueueView {
	ctx, span := tm.tracer.Start(ctx, "Queues")
	defer span.End()

	views := tm.svc.Queues(ctx)
	span.SetAttributes(attribute.Int("queues", len(views)))
	return views
}

func (tm *tracingMiddleware) Subscribe(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	ctx, span := tm.start(ctx, "Subscribe", c, name)
	defer span.End()

	subs, err := tm.svc.Subscribe(ctx, c, name)
	record(span, err)
	return subs, err
}

func (tm *tracingMiddleware) Unsubscribe(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	ctx, span := tm.start(ctx, "Unsubscribe", c, name)
	defer span.End()

	subs, err := tm.svc.Unsubscribe(ctx, c, name)
	record(span, err)
	return subs, err
}

func (tm *tracingMiddleware) AddPublisher(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	ctx, span := tm.start(ctx, "AddPublisher", c, name)
	defer span.End()

	pubs, err := tm.svc.AddPublisher(ctx, c, name)
	record(span, err)
	return pubs, err
}

func (tm *tracingMiddleware) RemovePublisher(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	ctx, span := tm.start(ctx, "RemovePublisher", c, name)
	defer span.End()

	pubs, err := tm.svc.RemovePublisher(ctx, c, name)
	record(span, err)
	return pubs, err
}

func (tm *tracingMiddleware) Push(ctx context.Context, sender broker.Client, name, payload string, opts broker.PushOptions) (broker.Message, error) {
	ctx, span := tm.start(ctx, "Push", sender, name)
	defer span.End()

	span.SetAttributes(
		attribute.Int("payload_size", len(payload)),
		attribute.Int64("priority", int64(opts.Priority)))

	msg, err := tm.svc.Push(ctx, sender, name, payload, opts)
	if err == nil {
		span.SetAttributes(attribute.String("message_id", msg.ID))
	}
	record(span, err)
	return msg, err
}

func (tm *tracingMiddleware) ClientLog(ctx context.Context, c broker.Client) broker.ClientLog {
	ctx, span := tm.tracer.Start(ctx, "ClientLog", trace.WithAttributes(attribute.String("client", c.String())))
	defer span.End()

	return tm.svc.ClientLog(ctx, c)
}

func (tm *tracingMiddleware) start(ctx context.Context, op string, c broker.Client, name string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("client", c.String()),
		attribute.String("queue", name),
	))
}

func record(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.kind", string(broker.KindOf(err))))
}
