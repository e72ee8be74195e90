package rajaongkir

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

func TestClientCostRequest(t *testing.T) {
	const expectedURL = "http://shipping.test/starter/cost"
	respBody := `{"meta":{"code":200},"data":[{"service":"REG","cost":18000,"etd":"2-3"}]}`

	var capturedURL string
	var capturedHeaders http.Header

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()

		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		var payload CostRequest
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		if payload.Weight != 1200 || payload.Courier != "jne" {
			t.Fatalf("unexpected payload %+v", payload)
		}
		return respond(http.StatusOK, respBody), nil
	})

	client, err := NewClient("test-key", WithBaseURL("http://shipping.test/starter"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	data, err := client.Cost(context.Background(), CostRequest{Origin: "501", Destination: "114", Weight: 1200, Courier: "jne"})
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("Key") != "test-key" {
		t.Fatalf("api key header missing")
	}
	if string(data) != `[{"service":"REG","cost":18000,"etd":"2-3"}]` {
		t.Fatalf("unexpected data %s", data)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	calls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return respond(http.StatusTooManyRequests, `{}`), nil
		}
		return respond(http.StatusOK, `[{"province_id":"6","province":"DKI Jakarta"}]`), nil
	})

	client, err := NewClient("test-key", WithBaseURL("http://shipping.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.backoff = 0

	data, err := client.Provinces(context.Background())
	if err != nil {
		t.Fatalf("provinces: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !strings.Contains(string(data), "DKI Jakarta") {
		t.Fatalf("unexpected data %s", data)
	}
}

func TestClientGivesUpAfterRateLimitRetries(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusTooManyRequests, `{}`), nil
	})
	client, err := NewClient("test-key", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.backoff = 0

	_, err = client.Cities(context.Background(), 6)
	if !pkgerrors.IsCode(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestClientValidatesCostRequest(t *testing.T) {
	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Cost(context.Background(), CostRequest{Origin: "501", Destination: "114", Weight: 0, Courier: "jne"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := NewClient(" "); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
