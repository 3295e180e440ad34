package workflow

import (
	"github.com/ledgerline/be-approvals/internal/errors"
)

// Role is a level in the platform role hierarchy. Higher roles satisfy
// every requirement a lower role satisfies.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
)

var roleLevels = map[Role]int{
	RoleViewer:  1,
	RoleUser:    2,
	RoleManager: 3,
	RoleAdmin:   4,
	RoleOwner:   5,
}

// ParseRole validates a role name.
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if _, ok := roleLevels[r]; !ok {
		return "", errors.Newf(errors.ErrCodeConfiguration, "unknown role %q", name)
	}
	return r, nil
}

// Satisfies reports whether holding r meets a requirement for required.
func (r Role) Satisfies(required Role) bool {
	held, ok := roleLevels[r]
	if !ok {
		return false
	}
	need, ok := roleLevels[required]
	if !ok {
		return false
	}
	return held >= need
}

// SatisfiableRoles returns the union of roles the held roles can act for.
// An actor holding admin may decide steps requiring viewer through admin.
func SatisfiableRoles(held []Role) []Role {
	highest := 0
	for _, r := range held {
		if level, ok := roleLevels[r]; ok && level > highest {
			highest = level
		}
	}
	var satisfied []Role
	for _, r := range []Role{RoleViewer, RoleUser, RoleManager, RoleAdmin, RoleOwner} {
		if roleLevels[r] <= highest {
			satisfied = append(satisfied, r)
		}
	}
	return satisfied
}
