package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// ParseRole принимает и единственное, и множественное число ("clients" из URL).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "clients":
		return RoleClient, nil
	case "freelancer", "freelancers":
		return RoleFreelancer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleFreelancer
}

// Plural — сегмент пути: /api/clients/...
func (r Role) Plural() string {
	return string(r) + "s"
}

func (r Role) Counterpart() Role {
	if r == RoleClient {
		return RoleFreelancer
	}
	return RoleClient
}
