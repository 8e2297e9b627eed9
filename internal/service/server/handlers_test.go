package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quarryos/pkgfetch/internal/domain"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, stats *domain.StatsTable) *httptest.Server {
	t.Helper()
	s := New(nil, nil, stats, zap.NewNop())
	srv := httptest.NewServer(s.server.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, domain.NewStatsTable())

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status field = %q, want healthy", body.Status)
	}
}

func TestHandleStats(t *testing.T) {
	stats := domain.NewStatsTable()
	stats.ForMirror("http://a.example.com/blobs").NetworkBlips().Increment()
	srv := newTestServer(t, stats)

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]domain.MirrorStatsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode stats response: %v", err)
	}
	got, ok := body["http://a.example.com/blobs"]
	if !ok {
		t.Fatalf("stats response %v is missing the mirror", body)
	}
	if got.NetworkBlips != 1 {
		t.Errorf("network blips = %d, want 1", got.NetworkBlips)
	}
}

func TestHandleInstallRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, domain.NewStatsTable())

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "invalid json", method: http.MethodPost, body: `{`, want: http.StatusBadRequest},
		{name: "missing name", method: http.MethodPost, body: `{"variant":"0"}`, want: http.StatusBadRequest},
		{name: "invalid pin", method: http.MethodPost, body: `{"name":"pkg","pin":"nope"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+"/install", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST /install: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestInstallStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "package not found", err: domain.ErrPackageNotFound, want: http.StatusNotFound},
		{name: "mirror unauthorized", err: &domain.BadHTTPStatusError{Status: http.StatusUnauthorized}, want: http.StatusForbidden},
		{name: "mirror forbidden", err: &domain.BadHTTPStatusError{Status: http.StatusForbidden}, want: http.StatusForbidden},
		{name: "mirror server error", err: &domain.BadHTTPStatusError{Status: http.StatusBadGateway}, want: http.StatusBadGateway},
		{name: "transport error", err: &domain.NetworkError{Err: errors.New("connection refused")}, want: http.StatusBadGateway},
		{name: "integrity error", err: domain.ErrBlobTooSmall, want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := installStatus(tt.err); got != tt.want {
				t.Errorf("installStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
