package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRequestIDGeneratesAndEchoesUUID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a UUID: %v", seen, err)
	}
	if recorder.Header().Get("X-Request-Id") != seen {
		t.Errorf("response header %q does not match context id %q",
			recorder.Header().Get("X-Request-Id"), seen)
	}
}

func TestRequestIDReplacesMalformedInboundID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	request.Header.Set("X-Request-Id", "not-a-uuid\ninjected=true")
	handler.ServeHTTP(httptest.NewRecorder(), request)

	if strings.Contains(seen, "injected") {
		t.Fatalf("malformed inbound id was kept: %q", seen)
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("replacement id %q is not a UUID", seen)
	}
}

func TestRequestIDKeepsValidInboundID(t *testing.T) {
	inbound := uuid.NewString()
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	request.Header.Set("X-Request-Id", inbound)
	handler.ServeHTTP(httptest.NewRecorder(), request)

	if seen != inbound {
		t.Errorf("valid inbound id replaced: got %q, want %q", seen, inbound)
	}
}

func TestTraceLogsStatusAndRequestID(t *testing.T) {
	var buffer bytes.Buffer
	logger := log.New(&buffer, "", 0)

	handler := RequestID(Trace(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"missing"}`))
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/jobs/unknown", nil))

	line := buffer.String()
	if !strings.Contains(line, "status=404") {
		t.Errorf("trace line missing response status: %q", line)
	}
	if !strings.Contains(line, "path=/v1/jobs/unknown") {
		t.Errorf("trace line missing path: %q", line)
	}
	if strings.Contains(line, "request_id=unknown") {
		t.Errorf("trace line did not pick up the request id: %q", line)
	}
}

func TestAuthGuardsOnlyTheAPISurface(t *testing.T) {
	handler := Auth("secret")(okHandler())

	cases := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{"healthz open", "/healthz", "", http.StatusOK},
		{"metrics open", "/metrics", "", http.StatusOK},
		{"api without token", "/v1/jobs", "", http.StatusUnauthorized},
		{"api wrong token", "/v1/jobs", "wrong", http.StatusUnauthorized},
		{"api right token", "/v1/jobs", "secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				request.Header.Set("Authorization", "Bearer "+tc.token)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)
			if recorder.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", recorder.Code, tc.wantStatus)
			}
		})
	}
}

func TestRateLimitThrottlesClientsButNotProbes(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	request := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	request.RemoteAddr = "10.0.0.1:1234"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, request)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, request)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("burst not limited, status = %d", second.Code)
	}

	probe := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	probe.RemoteAddr = "10.0.0.1:1234"
	third := httptest.NewRecorder()
	handler.ServeHTTP(third, probe)
	if third.Code != http.StatusOK {
		t.Errorf("health probe was rate limited, status = %d", third.Code)
	}
}
