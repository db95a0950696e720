package testutil

import (
	"context"
	"net/http"

	id "lexlink/pkg/domain"
	"lexlink/pkg/requestcontext"
)

// WithCaller adds an authenticated identity and role to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, the request is returned unchanged.
func WithCaller(req *http.Request, userID string, role id.Role) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), parsed, role))
}

// WithLawyer is WithCaller with the lawyer role.
func WithLawyer(req *http.Request, userID string) *http.Request {
	return WithCaller(req, userID, id.RoleLawyer)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
