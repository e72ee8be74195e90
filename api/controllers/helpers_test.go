package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/api/middleware"
	"github.com/mmararief/dante-propolis/pkg/enums"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRequest(method, target string, body io.Reader, userID uuid.UUID, role enums.UserRole, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rc := chi.NewRouteContext()
	for key, value := range params {
		rc.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if userID != uuid.Nil {
		ctx = middleware.WithIdentity(ctx, middleware.Identity{UserID: userID, Role: role})
	}
	return req.WithContext(ctx)
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, resp.Body.String())
	}
	return env
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, resp)
	if env.Error == nil {
		t.Fatalf("expected error envelope, got %s", resp.Body.String())
	}
	return env.Error.Code
}
