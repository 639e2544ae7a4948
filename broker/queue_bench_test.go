// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"strings"
	"testing"
)

func benchClient(i int) Client {
	return NewClient("10.0.0.1", uint16(1024+i%60000))
}

// BenchmarkQueuePush benchmarks pushing to a queue with a growing subscriber set.
func BenchmarkQueuePush(b *testing.B) {
	for _, subs := range []int{0, 10, 1000} {
		b.Run(fmt.Sprintf("%d_subscribers", subs), func(b *testing.B) {
			r := NewRegistry()
			if _, err := r.Create("bench", alice); err != nil {
				b.Fatal(err)
			}
			q, _ := r.Lookup("bench")
			for i := 0; i < subs; i++ {
				if _, err := q.Subscribe(benchClient(i)); err != nil {
					b.Fatal(err)
				}
			}
			payload := strings.Repeat("x", 256)

			b.ResetTimer()
			b.ReportAllocs()

			for b.Loop() {
				if _, err := q.Push(payload, alice, PushOptions{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkQueuePush_Parallel benchmarks pushes from many goroutines into
// distinct queues, which never share a lock.
func BenchmarkQueuePush_Parallel(b *testing.B) {
	r := NewRegistry()
	for i := 0; i < 64; i++ {
		if _, err := r.Create(fmt.Sprintf("q-%d", i), alice); err != nil {
			b.Fatal(err)
		}
	}
	names := r.Names()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q, _ := r.Lookup(names[i%len(names)])
			if _, err := q.Push("payload", alice, PushOptions{}); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

// BenchmarkRegistryCreate benchmarks queue registration.
func BenchmarkRegistryCreate(b *testing.B) {
	r := NewRegistry()

	b.ReportAllocs()
	i := 0
	for b.Loop() {
		if _, err := r.Create(fmt.Sprintf("q-%d", i), alice); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

// BenchmarkAggregatorLog benchmarks the cross-queue client view.
func BenchmarkAggregatorLog(b *testing.B) {
	r := NewRegistry()
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("q-%d", i)
		if _, err := r.Create(name, alice); err != nil {
			b.Fatal(err)
		}
		q, _ := r.Lookup(name)
		for j := 0; j < 10; j++ {
			if _, err := q.Push("payload", alice, PushOptions{}); err != nil {
				b.Fatal(err)
			}
		}
	}
	a := NewAggregator(r)

	b.ResetTimer()
	b.ReportAllocs()

	for b.Loop() {
		_ = a.Log(alice)
	}
}
