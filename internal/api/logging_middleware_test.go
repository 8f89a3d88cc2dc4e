package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func TestNewRouterLogsRequestCompleted(t *testing.T) {
	var buf bytes.Buffer
	env := setupTestRouter(t, zerolog.New(&buf), "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("User-Agent", "tracker-test-agent")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"message":"http request completed"`,
		`"level":"info"`,
		`"method":"GET"`,
		`"path":"/api/health"`,
		`"status":200`,
		`"request_id":`,
		`"duration_ms":`,
		`"user_agent":"tracker-test-agent"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %s in logs, got %q", want, logs)
		}
	}
}

func TestNewRouterLogsWarnForBadRequest(t *testing.T) {
	var buf bytes.Buffer
	env := setupTestRouter(t, zerolog.New(&buf), "")

	rr := doRequest(env.router, http.MethodPost, "/api/portfolios/main/remap", map[string]any{"symbol": "AAPL"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"level":"warn"`) {
		t.Fatalf("expected warn level log, got %q", logs)
	}
	if !strings.Contains(logs, `"status":400`) {
		t.Fatalf("expected status 400 in log, got %q", logs)
	}
	if !strings.Contains(logs, `"error_message":"INVALID_INPUT: ticker or category is required"`) {
		t.Fatalf("expected error message in log, got %q", logs)
	}
	if !strings.Contains(logs, `"route":"/api/portfolios/{id}/remap"`) {
		t.Fatalf("expected route pattern in log, got %q", logs)
	}
}

func TestRecoveryMiddlewareLogsPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	rr := doRequest(r, http.MethodGet, "/boom", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":500,"message":"internal server error"`) {
		t.Fatalf("expected structured error response, got %q", rr.Body.String())
	}

	logs := buf.String()
	if !strings.Contains(logs, `"message":"panic recovered"`) || !strings.Contains(logs, `"panic":"kaboom"`) {
		t.Fatalf("expected panic recovery log, got %q", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) || !strings.Contains(logs, `"status":500`) {
		t.Fatalf("expected error level request log, got %q", logs)
	}
}

func TestRoutePatternWithoutChiContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := routePattern(req); got != "" {
		t.Fatalf("expected empty pattern, got %q", got)
	}
}
