package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/errors"
)

var noBackoff = RetryPolicy{Attempts: 2}

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(5 * time.Second)

	tests := []struct {
		url         string
		errContains string
	}{
		{"https://generativelanguage.googleapis.com/v1beta", ""},
		{"http://example.com", ""},
		{"file:///etc/passwd", "scheme"},
		{"ftp://example.com", "scheme"},
		{"http://localhost:8080", "localhost"},
		{"http://api.localhost", "localhost"},
		{"http://127.0.0.1", "private IP"},
		{"http://10.1.2.3", "private IP"},
		{"http://192.168.0.10", "private IP"},
		{"http://169.254.169.254/latest/meta-data", "private IP"},
		{"http://[::1]", "private IP"},
		{"http://[fd00::1]", "private IP"},
		{"http://user@example.com", "user info"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("172.16.5.4")))
	assert.True(t, isPrivateIP(net.ParseIP("::ffff:10.0.0.1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isPrivateIP(net.ParseIP("2606:4700::1111")))
}

func TestWrapClient_AllowsLoopback(t *testing.T) {
	_, err := WrapClient(http.DefaultClient).ValidateURL("http://127.0.0.1:9999")
	assert.NoError(t, err)
}

func TestPostJSON_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"X-Key": "secret"}, map[string]string{"a": "b"}, &out, noBackoff)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSON_ExhaustedRetriesAreUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]any
	err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, struct{}{}, &out, noBackoff)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLLMUnavailable))
	assert.Equal(t, int32(2), calls.Load())

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusTooManyRequests, serr.StatusCode)
}

func TestPostJSON_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	var out map[string]any
	err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, struct{}{}, &out, noBackoff)
	assert.True(t, errors.Is(err, errors.ErrLLMUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostJSON_UndecodableBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var out map[string]any
	err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, struct{}{}, &out, noBackoff)
	assert.True(t, errors.Is(err, errors.ErrLLMUnavailable))
}

func TestPostJSON_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]any
	err := PostJSON(ctx, srv.Client(), srv.URL, nil, struct{}{}, &out, noBackoff)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLLMTimeout))
	assert.False(t, errors.Is(err, errors.ErrLLMUnavailable))
}
