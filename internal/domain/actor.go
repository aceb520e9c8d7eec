package domain

import "fmt"

// ActorRole differentiates callers acting on tickets.
type ActorRole string

const (
	ActorRoleEmployee ActorRole = "employee"
	ActorRoleAgent    ActorRole = "agent"
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleSystem   ActorRole = "system"
)

// Valid reports whether the role is known.
func (r ActorRole) Valid() bool {
	switch r {
	case ActorRoleEmployee, ActorRoleAgent, ActorRoleAdmin, ActorRoleSystem:
		return true
	}
	return false
}

// IsStaff covers agents and administrators.
func (r ActorRole) IsStaff() bool {
	return r == ActorRoleAgent || r == ActorRoleAdmin
}

// Actor is the explicit caller identity passed to every core operation.
type Actor struct {
	ID       string
	Name     string
	Email    string
	Role     ActorRole
	TenantID string
	Team     *string
}

// SystemActor is used by the breach scanner and escalation actions.
func SystemActor(tenantID string) Actor {
	return Actor{ID: "system", Name: "system", Role: ActorRoleSystem, TenantID: tenantID}
}

// AuthorRole maps the actor onto a comment author role.
func (a Actor) AuthorRole() AuthorRole {
	switch a.Role {
	case ActorRoleAgent, ActorRoleAdmin:
		return AuthorRoleAgent
	case ActorRoleSystem:
		return AuthorRoleSystem
	default:
		return AuthorRoleEmployee
	}
}

// Label renders the actor for audit comments, e.g. "agent Jane".
func (a Actor) Label() string {
	name := a.Name
	if name == "" {
		name = a.ID
	}
	if a.Role == ActorRoleSystem {
		return "system"
	}
	return fmt.Sprintf("%s %s", a.Role, name)
}
