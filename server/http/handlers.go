// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/absmach/qgate/broker"
)

type membershipFunc func(ctx context.Context, c broker.Client, name string) ([]broker.Client, error)

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toQueues(s.svc.Queues(r.Context())))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Queue(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueue(view))
}

func (s *Server) handleUserLog(w http.ResponseWriter, r *http.Request) {
	client, err := s.identify(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientLog(s.svc.ClientLog(r.Context(), client)))
}

// handleNewQueue responds with every queue, including the new one.
func (s *Server) handleNewQueue(w http.ResponseWriter, r *http.Request) {
	client, req, err := s.queueRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.svc.CreateQueue(r.Context(), client, *req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueues(s.svc.Queues(r.Context())))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.membership(w, r, s.svc.Subscribe, true)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.membership(w, r, s.svc.Unsubscribe, false)
}

func (s *Server) handleAddPublisher(w http.ResponseWriter, r *http.Request) {
	s.membership(w, r, s.svc.AddPublisher, false)
}

func (s *Server) handleRemovePublisher(w http.ResponseWriter, r *http.Request) {
	s.membership(w, r, s.svc.RemovePublisher, false)
}

func (s *Server) membership(w http.ResponseWriter, r *http.Request, fn membershipFunc, subscribe bool) {
	client, req, err := s.queueRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if subscribe && !s.limiter.AllowSubscribe(client.String()) {
		writeError(w, errRateLimited)
		return
	}

	members, err := fn(r.Context(), client, *req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClients(members))
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	client, err := s.identify(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req pushRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.limiter.AllowPush(client.String()) {
		writeError(w, errRateLimited)
		return
	}

	msg, err := s.svc.Push(r.Context(), client, *req.Name, payload, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessage(msg))
}

func (s *Server) queueRequest(w http.ResponseWriter, r *http.Request) (broker.Client, queueRequest, error) {
	client, err := s.identify(r)
	if err != nil {
		return broker.Client{}, queueRequest{}, err
	}

	var req queueRequest
	if err := s.decode(w, r, &req); err != nil {
		return broker.Client{}, queueRequest{}, err
	}
	if err := req.validate(); err != nil {
		return broker.Client{}, queueRequest{}, err
	}
	return client, req, nil
}

// identify resolves the caller's identity from its remote address.
func (s *Server) identify(r *http.Request) (broker.Client, error) {
	c, err := broker.ParseClient(r.RemoteAddr)
	if err != nil {
		s.logger.Warn("http_invalid_remote_addr",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return broker.Client{}, badRequest("cannot resolve client address")
	}
	return c, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return badRequest("request body must be a JSON object")
	case errors.As(err, &tooLarge):
		return &apiError{status: http.StatusRequestEntityTooLarge, kind: "bad_request", message: "request body too large"}
	default:
		s.logger.Debug("http_invalid_request", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		return badRequest("invalid request: %v", err)
	}
}
