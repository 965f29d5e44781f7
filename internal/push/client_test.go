package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/send", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	err := c.Send(context.Background(), "tok-1", Message{
		Title:    "Today: Paris Trip",
		Body:     "Have a great time!",
		Data:     map[string]string{"route": "/activities/a1"},
		Priority: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)
	assert.Equal(t, "Today: Paris Trip", got.Title)
	assert.Equal(t, "/activities/a1", got.Data["route"])
}

func TestClient_SendErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		invalid bool
		auth    bool
	}{
		{name: "gone", status: http.StatusGone, invalid: true},
		{name: "not found", status: http.StatusNotFound, invalid: true},
		{name: "unregistered code", status: http.StatusBadRequest, body: `{"code":"UNREGISTERED"}`, invalid: true},
		{name: "other gateway error", status: http.StatusBadRequest, body: `{"code":"PAYLOAD_TOO_LARGE","message":"too big"}`},
		{name: "server error", status: http.StatusInternalServerError, body: "oops"},
		{name: "unauthorized", status: http.StatusUnauthorized, auth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL, "secret").Send(context.Background(), "tok-1", Message{Title: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.invalid, err == ErrInvalidToken)
			assert.Equal(t, tt.auth, IsAuthError(err))
		})
	}
}

func TestClient_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "secret").Send(context.Background(), "tok-1", Message{Title: "x"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_RetryLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	c.maxRetries = 1
	err := c.Send(context.Background(), "tok-1", Message{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
}

func TestClient_EmptyToken(t *testing.T) {
	assert.ErrorIs(t, NewClient("http://unused", "secret").Send(context.Background(), " ", Message{}), ErrInvalidToken)
}
