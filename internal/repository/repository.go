package repository

import (
	"context"

	"github.com/okonek/teamspace/internal/domain"
)

// UserRepository persists users and their profile documents.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserName(ctx context.Context, id, name string) error
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpsertProfile(ctx context.Context, profile *domain.Profile) error
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// SessionRepository persists login sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error
}

// LoginTokenRepository stores one-time login secrets.
type LoginTokenRepository interface {
	CreateLoginToken(ctx context.Context, token *domain.LoginToken) error
	// ConsumeLoginToken atomically removes and returns the token. A second
	// consume of the same id reports ErrNotFound.
	ConsumeLoginToken(ctx context.Context, id string) (*domain.LoginToken, error)
}

// TeamRepository manages team metadata documents.
type TeamRepository interface {
	// CreateTeamWithOwner inserts the team and the creator's owner
	// membership in one transaction.
	CreateTeamWithOwner(ctx context.Context, team *domain.Team, owner *domain.Membership) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	UpdateTeam(ctx context.Context, team *domain.Team) error
	DeleteTeam(ctx context.Context, teamID string) error
	CountTeams(ctx context.Context) (int, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
}

// MembershipRepository manages the user/team relation and its roles.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, member *domain.Membership) error
	GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error)
	GetMembershipByID(ctx context.Context, id string) (*domain.Membership, error)
	ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	UpdateMembershipRoles(ctx context.Context, id string, roles []string) error
	ActivateMembership(ctx context.Context, id string) error
	DeleteMembership(ctx context.Context, id string) error
	// TransferOwnership swaps the owner role between two confirmed members
	// in one transaction: from becomes [admin], to becomes [owner, admin].
	TransferOwnership(ctx context.Context, teamID, fromUserID, toUserID string) error
}

// SampleRepository persists content records.
type SampleRepository interface {
	CreateSample(ctx context.Context, sample *domain.Sample) error
	GetSampleByID(ctx context.Context, id string) (*domain.Sample, error)
	ListSamplesByUser(ctx context.Context, userID string) ([]domain.Sample, error)
	ListSamplesByTeam(ctx context.Context, teamID string) ([]domain.Sample, error)
	UpdateSample(ctx context.Context, sample *domain.Sample) error
	DeleteSample(ctx context.Context, id string) error
}
