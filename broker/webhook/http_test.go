// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender_Send(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverDelay    time.Duration
		timeout        time.Duration
		errContains    string
	}{
		{
			name:           "successful request",
			serverResponse: http.StatusOK,
			timeout:        5 * time.Second,
		},
		{
			name:           "successful request with 202",
			serverResponse: http.StatusAccepted,
			timeout:        5 * time.Second,
		},
		{
			name:           "server returns 400",
			serverResponse: http.StatusBadRequest,
			timeout:        5 * time.Second,
			errContains:    "non-2xx status: 400",
		},
		{
			name:           "server returns 503",
			serverResponse: http.StatusServiceUnavailable,
			timeout:        5 * time.Second,
			errContains:    "non-2xx status: 503",
		},
		{
			name:           "timeout exceeded",
			serverResponse: http.StatusOK,
			serverDelay:    time.Second,
			timeout:        50 * time.Millisecond,
			errContains:    "context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
				assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

				body, err := io.ReadAll(r.Body)
				assert.NoError(t, err)
				assert.JSONEq(t, `{"event_type":"queue.created"}`, string(body))

				if tt.serverDelay > 0 {
					select {
					case <-time.After(tt.serverDelay):
					case <-r.Context().Done():
					}
				}
				w.WriteHeader(tt.serverResponse)
			}))
			defer server.Close()

			sender := NewHTTPSender()
			headers := map[string]string{"Authorization": "Bearer test-token"}
			payload := []byte(`{"event_type":"queue.created"}`)

			err := sender.Send(context.Background(), server.URL, headers, payload, tt.timeout)
			if tt.errContains == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestHTTPSender_Send_InvalidURL(t *testing.T) {
	sender := NewHTTPSender()

	err := sender.Send(context.Background(), "invalid://url", nil, []byte("test"), 5*time.Second)
	assert.Error(t, err)
}
