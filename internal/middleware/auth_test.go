package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareNoTokensPassesThrough(t *testing.T) {
	h := AuthMiddleware(nil, okHandler())
	rec := doRequest(t, h, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no tokens are configured", rec.Code)
	}
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	h := AuthMiddleware([]string{"secret-1", "secret-2"}, okHandler())
	rec := doRequest(t, h, "Bearer secret-2")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareTrimsTokenWhitespace(t *testing.T) {
	h := AuthMiddleware([]string{"secret"}, okHandler())
	rec := doRequest(t, h, "Bearer  secret ")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for whitespace-padded token", rec.Code)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	h := AuthMiddleware([]string{"secret"}, okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"wrong token", "Bearer nope"},
	}
	for _, tt := range tests {
		rec := doRequest(t, h, tt.header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tt.name, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type = %s, want application/json", tt.name, ct)
		}
		var body struct {
			JSONRPC string `json:"jsonrpc"`
			Error   struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("%s: 401 body is not valid JSON: %v", tt.name, err)
			continue
		}
		if body.Error.Code != -32001 || body.Error.Message == "" {
			t.Errorf("%s: error body = %+v", tt.name, body.Error)
		}
	}
}
