// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/qgate/broker/events"
	"github.com/benbjohnson/clock"
)

// DefaultReapInterval is how often the reaper looks for expired messages.
const DefaultReapInterval = time.Second

// Reaper periodically marks expired messages inactive.
// Messages are never removed from the log.
type Reaper struct {
	registry *Registry
	interval time.Duration
	stats    *Stats
	notifier Notifier
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReaper creates a reaper for r. Stats and notifier are optional.
func NewReaper(r *Registry, interval time.Duration, stats *Stats, notifier Notifier, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	return &Reaper{
		registry: r,
		interval: interval,
		stats:    stats,
		notifier: notifier,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the expiry loop until ctx is done or Stop is called.
func (rp *Reaper) Start(ctx context.Context) {
	ticker := rp.registry.opts.clock.Ticker(rp.interval)

	rp.wg.Add(1)
	go rp.expiryLoop(ctx, ticker)

	rp.logger.Info("reaper started", slog.Duration("interval", rp.interval))
}

// Stop halts the expiry loop and waits for it to exit.
func (rp *Reaper) Stop() {
	rp.stopOnce.Do(func() {
		close(rp.stopCh)
	})
	rp.wg.Wait()

	rp.logger.Info("reaper stopped")
}

// Sweep expires messages in every queue as of now and returns how many
// messages were marked inactive.
func (rp *Reaper) Sweep(ctx context.Context, now time.Time) int {
	total := 0
	for _, q := range rp.registry.list() {
		expired := q.expire(now)
		total += len(expired)

		if rp.notifier == nil {
			continue
		}
		for _, m := range expired {
			ev := events.MessageExpired{
				QueueName: q.name,
				MessageID: m.ID,
				Sender:    m.Sender.String(),
				Expiry:    m.Expiry,
			}
			if err := rp.notifier.Notify(ctx, ev); err != nil {
				rp.logger.Warn("event notification failed",
					slog.String("event_type", ev.Type()),
					slog.String("queue", q.name),
					slog.String("error", err.Error()))
			}
		}
	}

	if total > 0 {
		if rp.stats != nil {
			rp.stats.AddMessagesExpired(total)
		}
		rp.logger.Debug("messages expired", slog.Int("count", total))
	}
	return total
}

func (rp *Reaper) expiryLoop(ctx context.Context, ticker *clock.Ticker) {
	defer rp.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rp.Sweep(ctx, rp.registry.Now())
		case <-ctx.Done():
			return
		case <-rp.stopCh:
			return
		}
	}
}
