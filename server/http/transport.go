// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/absmach/qgate/broker"
)

// timeLayout renders message timestamps as dd/mm/YYYY HH:MM:SS.
const timeLayout = "02/01/2006 15:04:05"

var maxLifetime = time.Duration(math.MaxInt64).Seconds()

type queueRequest struct {
	Name *string `json:"name"`
}

func (req queueRequest) validate() error {
	if req.Name == nil {
		return errRequired("name")
	}
	if *req.Name == "" {
		return badRequest(`"name" must not be empty`)
	}
	return nil
}

type pushRequest struct {
	Name     *string         `json:"name"`
	Data     json.RawMessage `json:"data"`
	Lifetime *float64        `json:"lifetime"`
	Priority *int64          `json:"priority"`
}

func (req pushRequest) validate() error {
	if err := (queueRequest{Name: req.Name}).validate(); err != nil {
		return err
	}
	if len(req.Data) == 0 || bytes.Equal(req.Data, []byte("null")) {
		return errRequired("data")
	}
	if req.Lifetime != nil && (*req.Lifetime <= 0 || *req.Lifetime > maxLifetime) {
		return badRequest(`"lifetime" must be a positive number of seconds`)
	}
	if req.Priority != nil && *req.Priority < 0 {
		return badRequest(`"priority" must be a non-negative integer`)
	}
	return nil
}

// payload returns data as text: strings verbatim, any other JSON value
// in its compact encoding.
func (req pushRequest) payload() (string, error) {
	if req.Data[0] == '"' {
		var s string
		if err := json.Unmarshal(req.Data, &s); err != nil {
			return "", badRequest(`"data" is not a valid string`)
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, req.Data); err != nil {
		return "", badRequest(`"data" is not valid JSON`)
	}
	return buf.String(), nil
}

func (req pushRequest) options() broker.PushOptions {
	var opts broker.PushOptions
	if req.Lifetime != nil {
		opts.TTL = time.Duration(*req.Lifetime * float64(time.Second))
	}
	if req.Priority != nil {
		opts.Priority = uint(*req.Priority)
	}
	return opts
}

type clientResponse struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

type messageResponse struct {
	ID         string           `json:"id"`
	Sender     clientResponse   `json:"sender"`
	Recipients []clientResponse `json:"recipients"`
	Created    string           `json:"created"`
	Lifetime   string           `json:"lifetime"`
	Data       string           `json:"data"`
	Active     bool             `json:"active"`
	Priority   uint             `json:"priority"`
}

type queueResponse struct {
	Name        string            `json:"name"`
	Publisher   []clientResponse  `json:"publisher"`
	Subscribers []clientResponse  `json:"subscribers"`
	Data        []messageResponse `json:"data"`
}

type clientLogResponse struct {
	Publisher  []string          `json:"publisher"`
	Subscriber []string          `json:"subscriber"`
	Messages   []messageResponse `json:"messages"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func toClient(c broker.Client) clientResponse {
	return clientResponse{Host: c.Host, Port: c.Port}
}

func toClients(cs []broker.Client) []clientResponse {
	out := make([]clientResponse, len(cs))
	for i, c := range cs {
		out[i] = toClient(c)
	}
	return out
}

func toMessage(m broker.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		Sender:     toClient(m.Sender),
		Recipients: toClients(m.Recipients),
		Created:    m.Created.UTC().Format(timeLayout),
		Lifetime:   m.Expiry.UTC().Format(timeLayout),
		Data:       m.Payload,
		Active:     m.Active,
		Priority:   m.Priority,
	}
}

func toMessages(ms []broker.Message) []messageResponse {
	out := make([]messageResponse, len(ms))
	for i, m := range ms {
		out[i] = toMessage(m)
	}
	return out
}

func toQueue(v broker.QueueView) queueResponse {
	return queueResponse{
		Name:        v.Name,
		Publisher:   toClients(v.Publishers),
		Subscribers: toClients(v.Subscribers),
		Data:        toMessages(v.Messages),
	}
}

func toQueues(views map[string]broker.QueueView) map[string]queueResponse {
	out := make(map[string]queueResponse, len(views))
	for name, v := range views {
		out[name] = toQueue(v)
	}
	return out
}

func toClientLog(l broker.ClientLog) clientLogResponse {
	return clientLogResponse{
		Publisher:  l.Publisher,
		Subscriber: l.Subscriber,
		Messages:   toMessages(l.Messages),
	}
}

// apiError is a failure detected by the HTTP layer itself.
type apiError struct {
	status  int
	kind    string
	message string
}

func (e *apiError) Error() string {
	return e.message
}

var errRateLimited = &apiError{status: http.StatusTooManyRequests, kind: "rate_limited", message: "rate limit exceeded"}

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, kind: "bad_request", message: fmt.Sprintf(format, args...)}
}

func errRequired(field string) error {
	return badRequest("%q is required", field)
}

func statusOf(kind broker.Kind) int {
	switch kind {
	case broker.KindNotFound:
		return http.StatusNotFound
	case broker.KindConflict, broker.KindNotSubscribed:
		return http.StatusConflict
	case broker.KindNotPublisher:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		writeJSON(w, ae.status, errorResponse{Kind: ae.kind, Message: ae.message})
		return
	}

	kind := broker.KindOf(err)
	if kind == "" {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "internal", Message: "internal server error"})
		return
	}
	writeJSON(w, statusOf(kind), errorResponse{Kind: string(kind), Message: err.Error()})
}
