package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mmararief/dante-propolis/pkg/logger"
)

func loggedRouter(buf *bytes.Buffer) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Format: logger.FormatJSON})
	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Get("/api/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/api/checkout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	return r
}

func TestLoggingRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	loggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/42", nil))

	out := buf.String()
	for _, want := range []string{`"route":"/api/orders/{orderID}"`, `"status":200`, `"bytes":2`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestLoggingLevelsFollowStatus(t *testing.T) {
	var buf bytes.Buffer
	loggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warn entry for 409, got %s", buf.String())
	}
}

func TestLoggingSkipsHealthyProbes(t *testing.T) {
	var buf bytes.Buffer
	router := loggedRouter(&buf)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected healthy probe to be silent, got %s", buf.String())
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if !strings.Contains(buf.String(), `"status":503`) {
		t.Fatalf("expected failing probe to be logged, got %s", buf.String())
	}
}

func TestCORSDropsCredentialsForWildcard(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	preflight := func(origins []string, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", idempotencyHeader)
		resp := httptest.NewRecorder()
		CORS(origins)(next).ServeHTTP(resp, req)
		return resp
	}

	open := preflight(nil, "https://shop.example")
	if got := open.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials for wildcard, got %q", got)
	}

	pinned := preflight([]string{"https://shop.example"}, "https://shop.example")
	if got := pinned.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example" {
		t.Fatalf("expected origin echo, got %q", got)
	}
	if got := pinned.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials for pinned origin, got %q", got)
	}
}
