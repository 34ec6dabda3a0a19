// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/holoauth/pkg/errutil"
)

func ready(context.Context) error { return nil }

// get issues a GET against the server's handler without opening a socket.
func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func startServer(t *testing.T, s *Server) <-chan error {
	t.Helper()
	errCh, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return errCh
}

func TestMetrics_RecordFlowNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.RecordFlow("register", "ok") })
}

func TestMetrics_RecordFlow(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordFlow("authenticate", "AUTH_INCORRECT_PASSWORD")
	m.RecordFlow("authenticate", "AUTH_INCORRECT_PASSWORD")
	m.RecordFlow("authenticate", "ok")

	assert.InDelta(t, 2, testutil.ToFloat64(m.FlowsTotal.WithLabelValues("authenticate", "AUTH_INCORRECT_PASSWORD")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FlowsTotal.WithLabelValues("authenticate", "ok")), 0)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", ready, WithBuildInfo("1.2.3", "abc123"))

	s.Metrics().RequestsTotal.WithLabelValues("/users/api/register", "201").Inc()
	s.Metrics().RecordFlow("register", "ok")
	RecordNotificationFailure("verification")

	status, body := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, status)

	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `holoauth_http_requests_total{route="/users/api/register",status="201"} 1`)
	assert.Contains(t, body, `holoauth_flows_total{flow="register",outcome="ok"} 1`)
	assert.Contains(t, body, `holoauth_notification_failures_total{kind="verification"}`)
	assert.Contains(t, body, `holoauth_build_info{commit="abc123",version="1.2.3"} 1`)
}

func TestServer_BuildInfoOptional(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	_, body := get(t, s, "/metrics")
	assert.NotContains(t, body, "holoauth_build_info")
}

func TestServer_Liveness(t *testing.T) {
	s := NewServer("127.0.0.1:0", func(context.Context) error { return errors.New("down") })
	status, body := get(t, s, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"nil checker", nil, http.StatusOK, "ok"},
		{"ready", ready, http.StatusOK, "ok"},
		{"not ready", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("127.0.0.1:0", tt.checker, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			status, body := get(t, s, "/healthz/readiness")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_ReadinessLogsCauseNotBody(t *testing.T) {
	var buf bytes.Buffer
	checker := func(context.Context) error {
		return oops.Code("STORE_UNAVAILABLE").Errorf("dial tcp 10.0.0.5:5432: connection refused")
	}
	s := NewServer("127.0.0.1:0", checker, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	status, body := get(t, s, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NotContains(t, body, "10.0.0.5")
	assert.Contains(t, buf.String(), "STORE_UNAVAILABLE")
}

func TestServer_ReadinessTimeout(t *testing.T) {
	var deadline time.Time
	checker := func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}
	s := NewServer("127.0.0.1:0", checker, WithReadinessTimeout(50*time.Millisecond))

	before := time.Now()
	status, _ := get(t, s, "/healthz/readiness")
	require.Equal(t, http.StatusOK, status)
	require.False(t, deadline.IsZero(), "checker should receive a deadline")
	assert.WithinDuration(t, before.Add(50*time.Millisecond), deadline, time.Second)
}

func TestServer_ListensAndServes(t *testing.T) {
	s := NewServer("127.0.0.1:0", ready)
	startServer(t, s)
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz/readiness")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_DoubleStartFails(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	startServer(t, s)

	_, err := s.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_ALREADY_RUNNING")
}

func TestServer_ListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = taken.Close() }()

	s := NewServer(taken.Addr().String(), nil)
	_, err = s.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
	errutil.AssertErrorContext(t, err, "addr", taken.Addr().String())

	// A failed start leaves the server startable.
	s.addr = "127.0.0.1:0"
	startServer(t, s)
}

func TestServer_StopIdempotent(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	errCh := startServer(t, s)

	// Closing the listener out from under Serve simulates a runtime failure.
	require.NoError(t, s.listener.Close())

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for serve error")
	}
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	errCh, err := s.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "unexpected error on normal shutdown: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestServer_StopReleasesGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewServer("127.0.0.1:0", nil)
	errCh, err := s.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	for range errCh {
	}
}
