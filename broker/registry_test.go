// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Create(t *testing.T) {
	r, _ := newTestRegistry(t)

	view, err := r.Create("orders", alice)
	require.NoError(t, err)
	assert.Equal(t, "orders", view.Name)
	assert.Equal(t, []Client{alice}, view.Publishers)
	assert.Empty(t, view.Subscribers)
	assert.Empty(t, view.Messages)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_CreateDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Create("orders", alice)
	require.NoError(t, err)
	q, _ := r.Lookup("orders")
	_, err = q.Subscribe(carol)
	require.NoError(t, err)

	_, err = r.Create("orders", bob)
	assert.ErrorIs(t, err, ErrQueueExists)
	assert.Equal(t, KindConflict, KindOf(err))

	// The existing queue is untouched.
	q2, ok := r.Lookup("orders")
	require.True(t, ok)
	assert.Same(t, q, q2)
	assert.Equal(t, []Client{alice}, q2.Publishers())
	assert.Equal(t, []Client{carol}, q2.Subscribers())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Lookup(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, ok := r.Lookup("missing")
	assert.False(t, ok)

	_, err := r.Create("orders", alice)
	require.NoError(t, err)

	q, ok := r.Lookup("orders")
	require.True(t, ok)
	assert.Equal(t, "orders", q.Name())
}

func TestRegistry_SnapshotAndNames(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, name := range []string{"c", "a", "b"} {
		_, err := r.Create(name, alice)
		require.NoError(t, err)
	}
	q, _ := r.Lookup("b")
	_, err := q.Push("x", alice, PushOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Len(t, snap["b"].Messages, 1)
	assert.Empty(t, snap["a"].Messages)

	// Snapshots are detached from the live queues.
	_, err = q.Push("y", alice, PushOptions{})
	require.NoError(t, err)
	assert.Len(t, snap["b"].Messages, 1)
}

func TestRegistry_Independent(t *testing.T) {
	r1, _ := newTestRegistry(t)
	r2, _ := newTestRegistry(t)

	_, err := r1.Create("orders", alice)
	require.NoError(t, err)
	_, err = r2.Create("orders", bob)
	require.NoError(t, err)

	assert.Equal(t, 1, r1.Len())
	assert.Equal(t, 1, r2.Len())
}

func TestRegistry_ConcurrentCreateSameName(t *testing.T) {
	r, _ := newTestRegistry(t)

	const n = 64
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Create("x", NewClient("10.0.0.1", uint16(i+1)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrQueueExists)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, r.Len())

	q, ok := r.Lookup("x")
	require.True(t, ok)
	assert.Len(t, q.Publishers(), 1)
}

func TestRegistry_ConcurrentCreateDistinctNames(t *testing.T) {
	r, _ := newTestRegistry(t)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Create(fmt.Sprintf("q-%02d", i), alice)
			assert.NoError(t, err)
			r.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.Len())
}
