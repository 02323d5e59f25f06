package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsProbe(t *testing.T, origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/api/interviews", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(rr, req)
	return rr, reached
}

func TestCORSWildcardEchoesOriginWithoutCredentials(t *testing.T) {
	rr, _ := corsProbe(t, []string{"*"}, http.MethodGet, "https://anywhere.example")

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard match must not allow credentials")
	}
}

func TestCORSExactOriginAllowsCredentials(t *testing.T) {
	rr, _ := corsProbe(t, []string{"https://app.example.com"}, http.MethodGet, "https://app.example.com")

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("exact match should allow credentials")
	}
}

func TestCORSForeignOriginGetsNoHeaders(t *testing.T) {
	rr, reached := corsProbe(t, []string{"https://app.example.com"}, http.MethodGet, "https://evil.example.com")

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
	// The request itself still reaches the handler; the browser
	// enforces the missing headers.
	if !reached {
		t.Error("request should pass through to the handler")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	rr, reached := corsProbe(t, []string{"*"}, http.MethodOptions, "https://app.example.com")

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if reached {
		t.Error("preflight must not reach the handler")
	}
}
