package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/logger"
)

// MockVerifier is a mock implementation of auth.Verifier for testing.
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (string, error)
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (string, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token)
	}
	return "", domain.ErrUnauthenticated
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"user": UserIDFromContext(r.Context())})
}

func TestAuth(t *testing.T) {
	verifier := &MockVerifier{
		VerifyFunc: func(ctx context.Context, token string) (string, error) {
			if token == "good" {
				return "u1", nil
			}
			return "", errors.New("bad token")
		},
	}
	handler := Auth(verifier)(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer good", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid", "Bearer bad", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if !strings.Contains(rec.Body.String(), `"user":"u1"`) {
					t.Errorf("body = %s, want user id", rec.Body.String())
				}
				return
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["success"] != false || body["error"] == "" {
				t.Errorf("error body = %v", body)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := RateLimit(rl)(http.HandlerFunc(okHandler))

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/analyses", nil)
		req = req.WithContext(WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := do("u1"); got != http.StatusOK {
		t.Fatalf("first request status = %d", got)
	}
	if got := do("u1"); got != http.StatusOK {
		t.Fatalf("second request status = %d", got)
	}
	if got := do("u1"); got != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", got)
	}
	if got := do("u2"); got != http.StatusOK {
		t.Errorf("other user status = %d, want 200", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated request id = %q, header = %q", seen, rec.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Errorf("request id = %q, want propagated abc-123", seen)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS("https://app.example.com")(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/analyses", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(logger.NewWithWriter(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("log = %s, want panic entry", buf.String())
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestID(Logger(logger.NewWithWriter(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info().Msg("inside handler")
		w.WriteHeader(http.StatusAccepted)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"request_id":"req-1"`, `"status":202`, `"inside handler"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}
