package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmararief/dante-propolis/api/responses"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

// mapStore is an IdempotencyStore over a plain map; TTLs are ignored.
type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m mapStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, taken := m[key]; taken {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m mapStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m[key], _ = value.(string)
	return nil
}

func (m mapStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (m mapStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

// idemHarness wraps a handler in the middleware and counts handler runs.
type idemHarness struct {
	store   mapStore
	handler http.Handler
	runs    int
}

func newIdemHarness(inner http.HandlerFunc) *idemHarness {
	h := &idemHarness{store: mapStore{}}
	h.handler = Idempotency(h.store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.runs++
		inner(w, r)
	}))
	return h
}

func (h *idemHarness) send(user, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(asUser(req.Context(), user))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func (h *idemHarness) checkout(key, body string) *httptest.ResponseRecorder {
	return h.send("user-1", http.MethodPost, "/api/checkout", key, body)
}

func respondWith(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var env responses.ErrorEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", resp.Body.String(), err)
	}
	return env.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	cases := map[string]struct {
		method, path string
		ttl          time.Duration
	}{
		"checkout":           {http.MethodPost, "/api/checkout", criticalIdempotencyTTL},
		"trailing slash":     {http.MethodPost, "/api/checkout/", criticalIdempotencyTTL},
		"payment proof":      {http.MethodPost, "/api/orders/123/payment-proof", defaultIdempotencyTTL},
		"verify payment":     {http.MethodPost, "/api/admin/orders/abc/verify-payment", defaultIdempotencyTTL},
		"release sweep":      {http.MethodPost, "/api/admin/reservations/release", defaultIdempotencyTTL},
		"create batch":       {http.MethodPost, "/api/admin/products/p1/batches", defaultIdempotencyTTL},
		"adjust batch":       {http.MethodPost, "/api/admin/batches/b1/adjustments", defaultIdempotencyTTL},
		"order read":         {http.MethodGet, "/api/orders/123", 0},
		"cache invalidation": {http.MethodPost, "/api/admin/shipping/cache/invalidate", 0},
		"empty segment":      {http.MethodPost, "/api/admin/products//batches", 0},
		"extra segment":      {http.MethodPost, "/api/admin/products/p1/batches/extra", 0},
	}
	for name, tc := range cases {
		ttl, ok := routeTTL(tc.method, tc.path)
		if ok != (tc.ttl > 0) || ttl != tc.ttl {
			t.Errorf("%s: got (%v, %v), want ttl %v", name, ttl, ok, tc.ttl)
		}
	}
}

func TestIdempotencyKeyIsMandatoryOnGuardedRoutes(t *testing.T) {
	h := newIdemHarness(respondWith(http.StatusCreated))
	resp := h.checkout("", `{"items":[]}`)
	if resp.Code != http.StatusBadRequest || h.runs != 0 {
		t.Fatalf("expected 400 before the handler, got %d after %d runs", resp.Code, h.runs)
	}
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	h := newIdemHarness(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"order":"o-1"}`))
	})

	first := h.checkout("abc", `{"items":[1]}`)
	if first.Header().Get(replayedHeader) != "" {
		t.Fatal("first response must not be flagged as a replay")
	}
	again := h.checkout("abc", `{"items":[1]}`)

	switch {
	case h.runs != 1:
		t.Fatalf("handler ran %d times", h.runs)
	case again.Code != http.StatusAccepted:
		t.Fatalf("replayed status %d", again.Code)
	case again.Header().Get(replayedHeader) != "true":
		t.Fatal("replay not flagged")
	case again.Header().Get("Content-Type") != "application/json":
		t.Fatal("content type lost on replay")
	case again.Body.String() != `{"order":"o-1"}`:
		t.Fatalf("replayed body %q", again.Body.String())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	h := newIdemHarness(respondWith(http.StatusOK))
	h.checkout("xyz", `{"qty":1}`)
	resp := h.checkout("xyz", `{"qty":2}`)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if got := errorCode(t, resp); got != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeIdempotency, got)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	h := newIdemHarness(respondWith(http.StatusCreated))
	h.send("user-1", http.MethodPost, "/api/checkout", "same", `{}`)
	h.send("user-2", http.MethodPost, "/api/checkout", "same", `{}`)
	if h.runs != 2 {
		t.Fatalf("expected one run per user, got %d", h.runs)
	}
}

func TestIdempotencyLeavesReadsAlone(t *testing.T) {
	h := newIdemHarness(respondWith(http.StatusOK))
	resp := h.send("user-1", http.MethodGet, "/api/orders/123", "", "")
	if resp.Code != http.StatusOK || len(h.store) != 0 {
		t.Fatalf("expected a plain pass-through, got %d with %d stored keys", resp.Code, len(h.store))
	}
}

func TestIdempotencyRejectsRequestStillInFlight(t *testing.T) {
	var nested *httptest.ResponseRecorder
	var h *idemHarness
	h = newIdemHarness(func(w http.ResponseWriter, r *http.Request) {
		if nested == nil {
			nested = h.checkout("k1", `{"qty":1}`)
		}
		w.WriteHeader(http.StatusCreated)
	})

	resp := h.checkout("k1", `{"qty":1}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first request to finish, got %d", resp.Code)
	}
	if nested == nil || nested.Code != http.StatusConflict || errorCode(t, nested) != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected the duplicate to be refused while pending, got %+v", nested)
	}
	if h.runs != 1 {
		t.Fatalf("handler ran %d times", h.runs)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	status := http.StatusServiceUnavailable
	h := newIdemHarness(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) })
	release := func() int {
		return h.send("admin-1", http.MethodPost, "/api/admin/reservations/release", "sweep-1", `{}`).Code
	}

	if got := release(); got != http.StatusServiceUnavailable || len(h.store) != 0 {
		t.Fatalf("expected 503 and a freed key, got %d with %v", got, h.store)
	}
	status = http.StatusOK
	if got := release(); got != http.StatusOK {
		t.Fatalf("retry got %d", got)
	}
	if got := release(); got != http.StatusOK || h.runs != 2 {
		t.Fatalf("expected replay without a third run, got %d after %d runs", got, h.runs)
	}
}
