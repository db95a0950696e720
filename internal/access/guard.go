// Package access decides whether a caller may act on an owner's compliance
// records. Authentication happens in middleware; authorization happens here
// so services enforce it regardless of transport.
package access

import (
	"context"

	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
	"lexlink/pkg/requestcontext"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID id.UserID
	Role   id.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role.IsAdmin()
}

// CallerFromContext returns the authenticated caller or an unauthorized
// error when the request carries no identity.
func CallerFromContext(ctx context.Context) (Caller, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return Caller{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return Caller{UserID: userID, Role: requestcontext.Role(ctx)}, nil
}

// Authorize allows the owner and admins; everyone else is forbidden.
func Authorize(caller Caller, owner id.UserID) error {
	if caller.UserID == owner || caller.IsAdmin() {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not permitted to access this record")
}

// RequireRole fails with forbidden unless the caller has one of roles.
func RequireRole(caller Caller, roles ...id.Role) error {
	for _, r := range roles {
		if caller.Role == r {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "role not permitted for this operation")
}
