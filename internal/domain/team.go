package domain

import (
	"slices"
	"time"
)

// Role labels carried by a membership. A plain member has an empty role
// set. The creator of a team holds both owner and admin.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// Team is the denormalized metadata document for a membership group.
type Team struct {
	ID        string
	Name      string
	About     string
	AvatarID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership links a user to a team with a set of role labels. Pending
// invitations are memberships with Confirmed unset and a one-time secret
// hash that the accept flow consumes.
type Membership struct {
	ID           string
	TeamID       string
	UserID       string
	Roles        []string
	Confirmed    bool
	InvitedEmail string
	SecretHash   []byte
	CreatedAt    time.Time
	JoinedAt     time.Time
}

// HasRole reports whether the membership carries the given role label.
func (m *Membership) HasRole(role string) bool {
	return slices.Contains(m.Roles, role)
}

// HasAnyRole reports whether the membership carries any of the given labels.
func (m *Membership) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if m.HasRole(role) {
			return true
		}
	}
	return false
}

// TeamMember is a membership joined with the member's profile display
// fields for team detail views.
type TeamMember struct {
	UserID    string
	Name      string
	AvatarID  string
	Roles     []string
	Confirmed bool
	JoinedAt  time.Time
}
