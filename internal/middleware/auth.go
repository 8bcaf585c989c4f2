package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strings"
)

// AuthMiddleware validates Bearer tokens on incoming MCP requests.
// With no tokens configured, requests pass through unauthenticated.
func AuthMiddleware(validTokens []string, next http.Handler) http.Handler {
	tokenSet := make(map[string]struct{}, len(validTokens))
	for _, token := range validTokens {
		tokenSet[token] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(tokenSet) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token, reason := bearerToken(r)
		if reason != "" {
			log.Printf("Auth failed from %s: %s", r.RemoteAddr, reason)
			writeUnauthorized(w, reason)
			return
		}

		if _, valid := tokenSet[token]; !valid {
			log.Printf("Auth failed from %s: invalid token", r.RemoteAddr)
			writeUnauthorized(w, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header, returning
// a non-empty reason when the header is missing or malformed.
func bearerToken(r *http.Request) (token, reason string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "Bearer token required"
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"jsonrpc":"2.0","error":{"code":-32001,"message":%q}}`, message)
}
