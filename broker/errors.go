// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"
)

// Kind classifies broker failures. All kinds are expected and recoverable.
type Kind string

const (
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindNotPublisher  Kind = "not_publisher"
	KindNotSubscribed Kind = "not_subscribed"
)

var (
	ErrQueueExists       = errors.New("queue already exists")
	ErrQueueNotFound     = errors.New("queue not found")
	ErrAlreadySubscribed = errors.New("client already subscribed")
	ErrNotSubscribed     = errors.New("client not subscribed")
	ErrAlreadyPublisher  = errors.New("client already publisher")
	ErrNotPublisher      = errors.New("client not publisher")
	ErrLastPublisher     = errors.New("cannot remove last publisher")
)

// Error is returned by every failing broker operation.
// It wraps one of the sentinel errors above.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		err:     err,
	}
}

func errQueueExists(name string) error {
	return newError(KindConflict, ErrQueueExists, "queue %q already exists", name)
}

func errQueueNotFound(name string) error {
	return newError(KindNotFound, ErrQueueNotFound, "queue %q does not exist", name)
}

func errAlreadySubscribed(queue string, c Client) error {
	return newError(KindConflict, ErrAlreadySubscribed, "client %q is already a subscriber of queue %q", c, queue)
}

func errNotSubscribed(queue string, c Client) error {
	return newError(KindNotSubscribed, ErrNotSubscribed, "client %q is not a subscriber of queue %q", c, queue)
}

func errAlreadyPublisher(queue string, c Client) error {
	return newError(KindConflict, ErrAlreadyPublisher, "client %q is already a publisher of queue %q", c, queue)
}

func errNotPublisher(queue string, c Client) error {
	return newError(KindNotPublisher, ErrNotPublisher, "client %q is not a publisher of queue %q", c, queue)
}

func errLastPublisher(queue string, c Client) error {
	return newError(KindConflict, ErrLastPublisher, "client %q is the last publisher of queue %q", c, queue)
}

// KindOf returns the kind of a broker error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
