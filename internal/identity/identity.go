// Package identity models the authenticated principal supplied by the
// upstream identity provider. The service itself performs no authentication;
// it trusts the proxy-provided identity headers.
package identity

import "errors"

// Role is the coarse access level attached to a principal.
type Role string

const (
	RoleEmployee   Role = "EMPLOYEE"
	RoleManager    Role = "MANAGER"
	RoleAccountant Role = "ACCOUNTANT"
	RoleAdmin      Role = "ADMIN"
)

// ErrUnknownRole indicates a role value outside the enum.
var ErrUnknownRole = errors.New("identity: unknown role")

// ParseRole validates a raw role attribute.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleEmployee, RoleManager, RoleAccountant, RoleAdmin:
		return Role(raw), nil
	}
	return "", ErrUnknownRole
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   int64
	Name string
	Role Role
}
