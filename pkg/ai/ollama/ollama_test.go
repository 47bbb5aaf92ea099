package ollama

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

func TestWrapErrorExposesStatus(t *testing.T) {
	err := wrapError(api.StatusError{StatusCode: http.StatusServiceUnavailable, ErrorMessage: "loading model"})

	var se *ai.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ai.StatusError, got %T", err)
	}
	if se.HTTPStatus() != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", se.HTTPStatus())
	}
}

func TestHeaderTransportSetsAuthorization(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerTransport{
		headers: map[string]string{"Authorization": "Bearer secret"},
		rt:      http.DefaultTransport,
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got != "Bearer secret" {
		t.Fatalf("expected authorization header, got %q", got)
	}
}

func TestContextSize(t *testing.T) {
	c := &GraphOllamaClient{countTokens: func(s string) int { return len(strings.Fields(s)) }}
	if n := c.contextSize("short prompt", 512); n != 0 {
		t.Fatalf("expected default context for short prompt, got %d", n)
	}
	long := strings.Repeat("acme raises money ", 2000)
	if n := c.contextSize(long, 512); n <= defaultContext {
		t.Fatalf("expected larger context for long prompt, got %d", n)
	}
}
