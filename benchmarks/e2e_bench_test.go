// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package benchmarks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/absmach/qgate/broker"
	"github.com/absmach/qgate/client"
	qhttp "github.com/absmach/qgate/server/http"
)

func startTestBroker(b *testing.B, compression bool) *httptest.Server {
	b.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := broker.NewService(broker.NewRegistry(), nil, logger)
	srv := qhttp.New(qhttp.Config{Compression: compression}, svc, nil, logger)

	ts := httptest.NewServer(srv.Handler())
	b.Cleanup(ts.Close)
	return ts
}

func newClient(b *testing.B, url string) *client.Client {
	b.Helper()

	c, err := client.New(client.NewOptions().SetBaseURL(url))
	if err != nil {
		b.Fatalf("Failed to create client: %v", err)
	}
	b.Cleanup(c.Close)
	return c
}

// BenchmarkQueueCreation measures queue creation throughput over HTTP.
func BenchmarkQueueCreation(b *testing.B) {
	ts := startTestBroker(b, false)
	c := newClient(b, ts.URL)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := c.NewQueue(ctx, fmt.Sprintf("queue-%d", i)); err != nil {
			b.Fatalf("Failed to create queue: %v", err)
		}
	}
}

// BenchmarkPush measures push throughput for different payload sizes.
func BenchmarkPush(b *testing.B) {
	for _, size := range []int{16, 1024, 16 * 1024} {
		b.Run(fmt.Sprintf("payload=%d", size), func(b *testing.B) {
			ts := startTestBroker(b, true)
			c := newClient(b, ts.URL)
			ctx := context.Background()

			if _, err := c.NewQueue(ctx, "bench"); err != nil {
				b.Fatalf("Failed to create queue: %v", err)
			}
			payload := strings.Repeat("x", size)

			b.SetBytes(int64(size))
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := c.Push(ctx, "bench", payload); err != nil {
					b.Fatalf("Failed to push: %v", err)
				}
			}
		})
	}
}

// BenchmarkPush_Parallel measures concurrent pushes from many publishers
// into one queue.
func BenchmarkPush_Parallel(b *testing.B) {
	ts := startTestBroker(b, false)
	owner := newClient(b, ts.URL)
	ctx := context.Background()

	if _, err := owner.NewQueue(ctx, "bench"); err != nil {
		b.Fatalf("Failed to create queue: %v", err)
	}

	var failures atomic.Int64

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		c := newClient(b, ts.URL)
		if _, err := c.AddPublisher(ctx, "bench"); err != nil {
			failures.Add(1)
			return
		}
		for pb.Next() {
			if _, err := c.Push(ctx, "bench", "payload"); err != nil {
				failures.Add(1)
			}
		}
	})

	if n := failures.Load(); n > 0 {
		b.Fatalf("%d pushes failed", n)
	}
}

// BenchmarkUserLog measures the cross-queue scan with many queues.
func BenchmarkUserLog(b *testing.B) {
	ts := startTestBroker(b, false)
	c := newClient(b, ts.URL)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("queue-%d", i)
		if _, err := c.NewQueue(ctx, name); err != nil {
			b.Fatalf("Failed to create queue: %v", err)
		}
		if _, err := c.Push(ctx, name, "payload"); err != nil {
			b.Fatalf("Failed to push: %v", err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := c.UserLog(ctx); err != nil {
			b.Fatalf("Failed to read user log: %v", err)
		}
	}
}
