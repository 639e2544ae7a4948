// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = NewClient("127.0.0.1", 5000)
	bob   = NewClient("127.0.0.1", 5001)
	carol = NewClient("10.0.0.7", 5000)
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewRegistry(append([]Option{WithClock(mock)}, opts...)...), mock
}

func newTestQueue(t *testing.T, name string, creator Client, opts ...Option) (*Queue, *clock.Mock) {
	t.Helper()

	r, mock := newTestRegistry(t, opts...)
	_, err := r.Create(name, creator)
	require.NoError(t, err)
	q, ok := r.Lookup(name)
	require.True(t, ok)
	return q, mock
}

func TestQueue_CreatorIsOnlyPublisher(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)

	assert.Equal(t, []Client{alice}, q.Publishers())
	assert.Empty(t, q.Subscribers())
	assert.True(t, q.IsPublisher(alice))
	assert.False(t, q.IsSubscriber(alice))
	assert.Zero(t, q.Len())
}

func TestQueue_Subscribe(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)

	subs, err := q.Subscribe(bob)
	require.NoError(t, err)
	assert.Equal(t, []Client{bob}, subs)

	_, err = q.Subscribe(bob)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, []Client{bob}, q.Subscribers())

	// A publisher may also subscribe.
	subs, err = q.Subscribe(alice)
	require.NoError(t, err)
	assert.Equal(t, []Client{bob, alice}, subs)
}

func TestQueue_Unsubscribe(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)
	_, err := q.Subscribe(bob)
	require.NoError(t, err)
	_, err = q.Subscribe(carol)
	require.NoError(t, err)

	subs, err := q.Unsubscribe(bob)
	require.NoError(t, err)
	assert.Equal(t, []Client{carol}, subs)

	_, err = q.Unsubscribe(bob)
	assert.ErrorIs(t, err, ErrNotSubscribed)
	assert.Equal(t, KindNotSubscribed, KindOf(err))
	assert.Equal(t, []Client{carol}, q.Subscribers())
}

func TestQueue_AddRemovePublisher(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)

	pubs, err := q.AddPublisher(bob)
	require.NoError(t, err)
	assert.Equal(t, []Client{alice, bob}, pubs)

	_, err = q.AddPublisher(bob)
	assert.ErrorIs(t, err, ErrAlreadyPublisher)
	assert.Equal(t, KindConflict, KindOf(err))

	pubs, err = q.RemovePublisher(alice)
	require.NoError(t, err)
	assert.Equal(t, []Client{bob}, pubs)

	_, err = q.RemovePublisher(alice)
	assert.ErrorIs(t, err, ErrNotPublisher)
	assert.Equal(t, KindNotPublisher, KindOf(err))
}

func TestQueue_LastPublisher(t *testing.T) {
	t.Run("guarded", func(t *testing.T) {
		q, _ := newTestQueue(t, "orders", alice)

		_, err := q.RemovePublisher(alice)
		assert.ErrorIs(t, err, ErrLastPublisher)
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, []Client{alice}, q.Publishers())
	})

	t.Run("unguarded", func(t *testing.T) {
		q, _ := newTestQueue(t, "orders", alice, WithKeepLastPublisher(false))

		pubs, err := q.RemovePublisher(alice)
		require.NoError(t, err)
		assert.Empty(t, pubs)

		_, err = q.Push("hello", alice, PushOptions{})
		assert.ErrorIs(t, err, ErrNotPublisher)
	})
}

func TestQueue_PushNotPublisher(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)

	_, err := q.Push("hello", bob, PushOptions{})
	assert.ErrorIs(t, err, ErrNotPublisher)
	assert.Equal(t, KindNotPublisher, KindOf(err))
	assert.Zero(t, q.Len())
}

func TestQueue_Push(t *testing.T) {
	q, mock := newTestQueue(t, "orders", alice, WithIDGenerator(func() string { return "id-1" }))
	_, err := q.Subscribe(bob)
	require.NoError(t, err)

	msg, err := q.Push("hello", alice, PushOptions{TTL: 2 * time.Second, Priority: 5})
	require.NoError(t, err)

	assert.Equal(t, "id-1", msg.ID)
	assert.Equal(t, "hello", msg.Payload)
	assert.Equal(t, alice, msg.Sender)
	assert.Equal(t, []Client{bob}, msg.Recipients)
	assert.Equal(t, mock.Now(), msg.Created)
	assert.Equal(t, mock.Now().Add(2*time.Second), msg.Expiry)
	assert.Equal(t, 2*time.Second, msg.TTL())
	assert.Equal(t, uint(5), msg.Priority)
	assert.True(t, msg.Active)
	assert.Equal(t, 1, q.Len())

	// Recipients are a snapshot taken at push time.
	_, err = q.Subscribe(carol)
	require.NoError(t, err)
	_, err = q.Unsubscribe(bob)
	require.NoError(t, err)

	logged := q.Messages()
	require.Len(t, logged, 1)
	assert.Equal(t, []Client{bob}, logged[0].Recipients)
}

func TestQueue_PushDefaults(t *testing.T) {
	q, mock := newTestQueue(t, "orders", alice)

	msg, err := q.Push("hello", alice, PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, mock.Now().Add(DefaultTTL), msg.Expiry)
	assert.Zero(t, msg.Priority)
	assert.Empty(t, msg.Recipients)
	assert.NotEmpty(t, msg.ID)

	q2, mock2 := newTestQueue(t, "jobs", alice, WithDefaultTTL(time.Minute))
	msg, err = q2.Push("hello", alice, PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, mock2.Now().Add(time.Minute), msg.Expiry)
}

func TestQueue_ReadsAreCopies(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)
	_, err := q.Subscribe(bob)
	require.NoError(t, err)
	_, err = q.Push("hello", alice, PushOptions{})
	require.NoError(t, err)

	subs := q.Subscribers()
	subs[0] = carol
	msgs := q.Messages()
	msgs[0].Payload = "changed"
	msgs[0].Recipients[0] = carol

	assert.Equal(t, []Client{bob}, q.Subscribers())
	fresh := q.Messages()
	assert.Equal(t, "hello", fresh[0].Payload)
	assert.Equal(t, []Client{bob}, fresh[0].Recipients)
}

func TestQueue_Expire(t *testing.T) {
	q, mock := newTestQueue(t, "orders", alice)

	short, err := q.Push("short", alice, PushOptions{TTL: time.Second})
	require.NoError(t, err)
	_, err = q.Push("long", alice, PushOptions{TTL: time.Hour})
	require.NoError(t, err)

	assert.Empty(t, q.expire(mock.Now()))

	mock.Add(time.Second)
	expired := q.expire(mock.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, short.ID, expired[0].ID)
	assert.False(t, expired[0].Active)

	// Already inactive entries are not reported again.
	assert.Empty(t, q.expire(mock.Now()))

	msgs := q.Messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Active)
	assert.True(t, msgs[1].Active)
	// The copy returned by Push is unaffected.
	assert.True(t, short.Active)
}

func TestQueue_ConcurrentSubscribe(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			_, err := q.Subscribe(NewClient("10.0.0.1", port))
			assert.NoError(t, err)
		}(uint16(i + 1))
	}
	wg.Wait()

	assert.Len(t, q.Subscribers(), n)
}

func TestQueue_ConcurrentSameSubscriber(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Subscribe(bob)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if KindOf(err) == KindConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, []Client{bob}, q.Subscribers())
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q, _ := newTestQueue(t, "orders", alice)
	for i := 0; i < 4; i++ {
		_, err := q.AddPublisher(NewClient("10.0.0.2", uint16(i+1)))
		require.NoError(t, err)
	}

	const perPublisher = 50
	var wg sync.WaitGroup
	for _, p := range q.Publishers() {
		wg.Add(1)
		go func(p Client) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_, err := q.Push(fmt.Sprintf("%s-%d", p, i), p, PushOptions{})
				assert.NoError(t, err)
			}
		}(p)
	}
	// Membership changes race with pushes.
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			q.Subscribe(NewClient("10.0.0.3", port))
		}(uint16(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 5*perPublisher, q.Len())
	assert.Len(t, q.Subscribers(), 20)
}
