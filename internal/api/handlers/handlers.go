// Package handlers contains the HTTP handler implementations for the
// Agendly API.
//
// Each handler decodes and validates its requests, delegates to the
// service layer, and encodes responses through the core envelope helpers.
// Permission decisions live in the services and in the core middleware;
// handlers only translate between HTTP and the domain.
package handlers

import (
	"net"
	"net/http"
	"strings"

	"agendly/internal/types"
)

// extractClientIP returns the originating client address, preferring the
// first X-Forwarded-For hop set by the load balancer.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireActor pulls the authenticated Actor out of the request context.
// The auth middleware guarantees presence on protected routes; the error
// return covers misconfigured route wiring.
func requireActor(r *http.Request) (types.Actor, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"authentication required", nil)
	}
	return actor, nil
}
