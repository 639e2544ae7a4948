// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"net"
	"strconv"
	"time"
)

// TimeLayout is the layout of message timestamps on the wire.
const TimeLayout = "02/01/2006 15:04:05"

// Identity is a client as seen by the broker.
type Identity struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (i Identity) String() string {
	return net.JoinHostPort(i.Host, strconv.FormatUint(uint64(i.Port), 10))
}

// Message is a pushed message.
type Message struct {
	ID         string     `json:"id"`
	Sender     Identity   `json:"sender"`
	Recipients []Identity `json:"recipients"`
	Created    string     `json:"created"`
	Lifetime   string     `json:"lifetime"`
	Data       string     `json:"data"`
	Active     bool       `json:"active"`
	Priority   uint       `json:"priority"`
}

// CreatedAt parses the creation timestamp.
func (m Message) CreatedAt() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, m.Created, time.UTC)
}

// ExpiresAt parses the expiry timestamp.
func (m Message) ExpiresAt() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, m.Lifetime, time.UTC)
}

// Queue is a queue snapshot.
type Queue struct {
	Name        string     `json:"name"`
	Publisher   []Identity `json:"publisher"`
	Subscribers []Identity `json:"subscribers"`
	Data        []Message  `json:"data"`
}

// UserLog is the cross-queue view of the calling client.
type UserLog struct {
	Publisher  []string  `json:"publisher"`
	Subscriber []string  `json:"subscriber"`
	Messages   []Message `json:"messages"`
}

// PushOption configures a single push.
type PushOption func(*pushRequest)

// WithLifetime sets the message lifetime.
func WithLifetime(d time.Duration) PushOption {
	return func(r *pushRequest) {
		secs := d.Seconds()
		r.Lifetime = &secs
	}
}

// WithPriority attaches a priority to the message.
func WithPriority(p uint) PushOption {
	return func(r *pushRequest) {
		r.Priority = &p
	}
}

type queueRequest struct {
	Name string `json:"name"`
}

type pushRequest struct {
	Name     string   `json:"name"`
	Data     string   `json:"data"`
	Lifetime *float64 `json:"lifetime,omitempty"`
	Priority *uint    `json:"priority,omitempty"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
