package realtime

import (
	"context"

	"github.com/okonek/teamspace/internal/repository"
)

// RepositoryResolver resolves display refs against the primary store.
type RepositoryResolver struct {
	users repository.UserRepository
	teams repository.TeamRepository
}

func NewRepositoryResolver(users repository.UserRepository, teams repository.TeamRepository) *RepositoryResolver {
	return &RepositoryResolver{users: users, teams: teams}
}

func (r *RepositoryResolver) UserRef(ctx context.Context, userID string) (string, string, error) {
	profile, err := r.users.GetProfile(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return profile.Name, profile.AvatarID, nil
}

func (r *RepositoryResolver) TeamRef(ctx context.Context, teamID string) (string, string, error) {
	team, err := r.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return "", "", err
	}
	return team.Name, team.AvatarID, nil
}

var _ Resolver = (*RepositoryResolver)(nil)
