// Package models defines the client-side data types of the vault: roles,
// sessions and the payloads exchanged between the two participants.
package models

import (
	"fmt"

	"github.com/dmitrijs2005/aegislink/internal/common"
)

// Role is one of the two fixed participant identities of a vault.
type Role string

const (
	RoleUserA Role = "USER_A"
	RoleUserB Role = "USER_B"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleUserA, RoleUserB}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	return r == RoleUserA || r == RoleUserB
}

// ParseRole accepts the canonical name or the short forms "a"/"b".
func ParseRole(s string) (Role, error) {
	switch s {
	case "USER_A", "a", "A":
		return RoleUserA, nil
	case "USER_B", "b", "B":
		return RoleUserB, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownRole, s)
}
