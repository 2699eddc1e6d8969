package auth

import (
	"net/http"
	"strings"
)

// BearerToken strips an optional "Bearer " prefix from an Authorization value.
func BearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}

// FromRequest reads the token from the Authorization header or, for clients
// that cannot set headers on a socket upgrade, the "token" query parameter.
func FromRequest(r *http.Request) string {
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
