package domain

import dErrors "lexlink/pkg/domain-errors"

// Role is the caller's platform role as asserted by the identity provider.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

var validRoles = map[Role]bool{
	RoleClient: true,
	RoleLawyer: true,
	RoleAdmin:  true,
}

// ParseRole validates a role claim.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
