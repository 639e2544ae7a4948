// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_Counters(t *testing.T) {
	s := NewStats()

	s.IncrementQueuesCreated()
	s.IncrementSubscriptions()
	s.IncrementSubscriptions()
	s.IncrementUnsubscriptions()
	s.IncrementPublishersAdded()
	s.IncrementPublishersRemoved()
	s.IncrementMessagesPushed(10)
	s.IncrementMessagesPushed(5)
	s.AddMessagesExpired(3)

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.QueuesCreated)
	assert.EqualValues(t, 2, snap.Subscriptions)
	assert.EqualValues(t, 1, snap.Unsubscriptions)
	assert.EqualValues(t, 1, snap.PublishersAdded)
	assert.EqualValues(t, 1, snap.PublishersRemoved)
	assert.EqualValues(t, 2, snap.MessagesPushed)
	assert.EqualValues(t, 15, snap.BytesPushed)
	assert.EqualValues(t, 3, snap.MessagesExpired)
}

func TestStats_Errors(t *testing.T) {
	s := NewStats()

	s.IncrementErrors(errQueueExists("q"))
	s.IncrementErrors(errAlreadySubscribed("q", alice))
	s.IncrementErrors(errQueueNotFound("q"))
	s.IncrementErrors(errNotPublisher("q", alice))
	s.IncrementErrors(errNotSubscribed("q", alice))
	s.IncrementErrors(errors.New("not a broker error"))

	assert.EqualValues(t, 2, s.GetErrors(KindConflict))
	assert.EqualValues(t, 1, s.GetErrors(KindNotFound))
	assert.EqualValues(t, 1, s.GetErrors(KindNotPublisher))
	assert.EqualValues(t, 1, s.GetErrors(KindNotSubscribed))
	assert.Zero(t, s.GetErrors(Kind("other")))
}

func TestStats_Concurrent(t *testing.T) {
	s := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.IncrementMessagesPushed(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1000, s.GetMessagesPushed())
	assert.EqualValues(t, 1000, s.GetBytesPushed())
}

func TestKindOf(t *testing.T) {
	err := errNotSubscribed("orders", bob)
	wrapped := errors.Join(errors.New("context"), err)

	assert.Equal(t, KindNotSubscribed, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrNotSubscribed)
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "orders")
	assert.Contains(t, err.Error(), bob.String())
}
