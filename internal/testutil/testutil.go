// Package testutil provides common test utilities and helpers for LangRelay tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/langrelay/langrelay/internal/api"
	"github.com/langrelay/langrelay/internal/dedup"
	"github.com/langrelay/langrelay/internal/langs"
	"github.com/langrelay/langrelay/internal/messaging"
	"github.com/langrelay/langrelay/internal/router"
	"github.com/langrelay/langrelay/internal/store"
)

// TestVerifyToken is the webhook verify token used by test servers.
const TestVerifyToken = "test-verify-token"

// NewTestServer creates a test API server with in-memory dependencies and a
// recording mock messenger. This centralizes the wiring used across test
// files; the returned mock exposes every outbound message for assertions.
func NewTestServer(t *testing.T) (*api.Server, *messaging.MockService, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	msgr := messaging.NewMockService()
	r, err := router.NewRouter(
		router.WithStore(st),
		router.WithRegistry(langs.Default()),
		router.WithMessenger(msgr),
	)
	if err != nil {
		t.Fatalf("failed to build test router: %v", err)
	}
	pipeline := router.NewPipeline(dedup.New(0), router.NewClassifier(), r, st)
	srv, err := api.NewServer(pipeline, api.WithVerifyToken(TestVerifyToken))
	if err != nil {
		t.Fatalf("failed to build test server: %v", err)
	}
	return srv, msgr, st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response body and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &reqBody)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
