// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/qgate/broker"
)

var _ broker.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    broker.Service
}

// NewLogging creates logging middleware that wraps a broker service.
func NewLogging(svc broker.Service, logger *slog.Logger) broker.Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingMiddleware{logger, svc}
}

// CreateQueue logs queue creation.
func (lm *loggingMiddleware) CreateQueue(ctx context.Context, creator broker.Client, name string) (view broker.QueueView, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "CreateQueue", begin, err,
			slog.String("client", creator.String()),
			slog.String("queue", name))
	}(time.Now())

	return lm.svc.CreateQueue(ctx, creator, name)
}

func (lm *loggingMiddleware) Queue(ctx context.Context, name string) (view broker.QueueView, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "Queue", begin, err, slog.String("queue", name))
	}(time.Now())

	return lm.svc.Queue(ctx, name)
}

func (lm *loggingMiddleware) Queues(ctx context.Context) (views map[string]broker.QueueView) {
	defer func(begin time.Time) {
		lm.log(ctx, "Queues", begin, nil, slog.Int("queues", len(views)))
	}(time.Now())

	return lm.svc.Queues(ctx)
}

// Subscribe logs subscription details.
func (lm *loggingMiddleware) Subscribe(ctx context.Context, c broker.Client, name string) (subs []broker.Client, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "Subscribe", begin, err,
			slog.String("client", c.String()),
			slog.String("queue", name))
	}(time.Now())

	return lm.svc.Subscribe(ctx, c, name)
}

func (lm *loggingMiddleware) Unsubscribe(ctx context.Context, c broker.Client, name string) (subs []broker.Client, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "Unsubscribe", begin, err,
			slog.String("client", c.String()),
			slog.String("queue", name))
	}(time.Now())

	return lm.svc.Unsubscribe(ctx, c, name)
}

func (lm *loggingMiddleware) AddPublisher(ctx context.Context, c broker.Client, name string) (pubs []broker.Client, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "AddPublisher", begin, err,
			slog.String("client", c.String()),
			slog.String("queue", name))
	}(time.Now())

	return lm.svc.AddPublisher(ctx, c, name)
}

func (lm *loggingMiddleware) RemovePublisher(ctx context.Context, c broker.Client, name string) (pubs []broker.Client, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "RemovePublisher", begin, err,
			slog.String("client", c.String()),
			slog.String("queue", name))
	}(time.Now())

	return lm.svc.RemovePublisher(ctx, c, name)
}

// Push logs push details. The payload itself is never logged.
func (lm *loggingMiddleware) Push(ctx context.Context, sender broker.Client, name, payload string, opts broker.PushOptions) (msg broker.Message, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "Push", begin, err,
			slog.String("client", sender.String()),
			slog.String("queue", name),
			slog.Int("payload_size", len(payload)),
			slog.Uint64("priority", uint64(opts.Priority)),
			slog.String("message_id", msg.ID))
	}(time.Now())

	return lm.svc.Push(ctx, sender, name, payload, opts)
}

func (lm *loggingMiddleware) ClientLog(ctx context.Context, c broker.Client) (log broker.ClientLog) {
	defer func(begin time.Time) {
		lm.log(ctx, "ClientLog", begin, nil,
			slog.String("client", c.String()),
			slog.Int("messages", len(log.Messages)))
	}(time.Now())

	return lm.svc.ClientLog(ctx, c)
}

func (lm *loggingMiddleware) log(ctx context.Context, method string, begin time.Time, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("duration", time.Since(begin).String()))
	if err != nil {
		attrs = append(attrs,
			slog.String("kind", string(broker.KindOf(err))),
			slog.Any("error", err))
		lm.logger.LogAttrs(ctx, slog.LevelWarn, method, attrs...)
		return
	}
	lm.logger.LogAttrs(ctx, slog.LevelInfo, method, attrs...)
}
