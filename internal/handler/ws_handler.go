/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
verifying the bearer token offline, resolving the caller's display name, upgrading the
HTTP connection to WebSocket, and initiating the connection lifecycle.
*/
package handler

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chatgate/internal/pkg/auth/jwt"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/limiter"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/resp"
)

// identityLookupTimeout bounds the one-shot display-name lookup at connect time.
const identityLookupTimeout = 5 * time.Second

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// A connection lacking a verifiable token is upgraded only to be closed immediately
// with a policy-violation close code; no events are exchanged with it.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			rateLimitErr := errs.NewError(errs.ErrRateLimitExceeded)
			resp.RespondError(w, r, rateLimitErr)
			return
		}

		// Verify the bearer token offline before touching any registry.
		tokenString := jwt.TokenFromRequest(r)

		var payload *jwt.Payload
		if tokenString != "" {
			payload, err = jwt.ParseToken(tokenString, deps.Config.JWTSecret)
			if err != nil {
				logx.Warn("WebSocket token verification failed", "error", err)
				payload = nil
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		if payload == nil {
			closeMessage := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

			if err := conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
				logx.Warn("Failed to send policy-violation close message", "error", err)
			}

			conn.Close()
			return
		}

		displayName := resolveDisplayName(r.Context(), deps, payload)

		logx.Info("WebSocket connection established", "user_id", payload.ID, "display_name", displayName)

		deps.Gateway.HandleConnection(conn, payload.ID, displayName)
	}
}

// resolveDisplayName performs the one-shot identity lookup against the user
// store, falling back to the token claims and finally "unknown" when the
// lookup fails. The result is cached on the connection for its lifetime.
func resolveDisplayName(ctx context.Context, deps *AppDeps, payload *jwt.Payload) string {
	lookupCtx, cancel := context.WithTimeout(ctx, identityLookupTimeout)
	defer cancel()

	profile, err := deps.Store.GetDisplayName(lookupCtx, payload.ID)
	if err != nil {
		logx.Warn("Display-name lookup failed, falling back to token claims", "user_id", payload.ID, "error", err)

		if payload.Username != "" {
			return payload.Username
		}
		if payload.Email != "" {
			return payload.Email
		}
		return "unknown"
	}

	return profile.DisplayName()
}
