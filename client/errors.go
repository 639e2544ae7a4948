// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
)

// Client errors.
var (
	// Configuration errors.
	ErrNoBaseURL      = errors.New("no base URL configured")
	ErrInvalidTimeout = errors.New("timeout cannot be negative")
	ErrInvalidLocal   = errors.New("invalid local address")

	// Broker errors, matched by kind with errors.Is.
	ErrBadRequest    = errors.New("bad request")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrNotPublisher  = errors.New("not a publisher")
	ErrNotSubscribed = errors.New("not subscribed")
	ErrRateLimited   = errors.New("rate limited")
)

var kindErrors = map[string]error{
	"bad_request":    ErrBadRequest,
	"conflict":       ErrConflict,
	"not_found":      ErrNotFound,
	"not_publisher":  ErrNotPublisher,
	"not_subscribed": ErrNotSubscribed,
	"rate_limited":   ErrRateLimited,
}

// APIError is a non-2xx reply from the broker.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("broker returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("broker returned %s (%d): %s", e.Kind, e.Status, e.Message)
}

// Is reports whether the error kind matches one of the package sentinels.
func (e *APIError) Is(target error) bool {
	err, ok := kindErrors[e.Kind]
	return ok && err == target
}
