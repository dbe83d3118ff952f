// Package team implements the membership and role model: who belongs to
// a team, what their role labels allow, and the invite/accept, leave,
// remove, promote/demote and ownership transfer flows built on it.
package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/okonek/teamspace/internal/apperr"
	"github.com/okonek/teamspace/internal/cache"
	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/repository"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/pkg/config"
	"github.com/okonek/teamspace/pkg/crypto"
)

const (
	nameMinLength  = 2
	nameMaxLength  = 50
	aboutMaxLength = 256
)

// Feed receives change events for fan-out to realtime subscribers.
type Feed interface {
	Publish(event domain.ChangeEvent)
}

// Service handles team workflows.
type Service struct {
	teams   repository.TeamRepository
	members repository.MembershipRepository
	users   repository.UserRepository
	images  storage.ImageStore
	views   cache.Cache
	feed    Feed
	logger  *slog.Logger
	cfg     config.AppConfig
}

// New constructs a Service.
func New(teams repository.TeamRepository, members repository.MembershipRepository, users repository.UserRepository, images storage.ImageStore, views cache.Cache, feed Feed, logger *slog.Logger, cfg config.AppConfig) Service {
	return Service{teams: teams, members: members, users: users, images: images, views: views, feed: feed, logger: logger, cfg: cfg}
}

// Detail is a team document joined with its member list.
type Detail struct {
	domain.Team
	Members []domain.TeamMember `json:"members"`
}

// InviteRef is everything the accept flow needs, delivered to the invited
// email out of band.
type InviteRef struct {
	TeamID       string
	MembershipID string
	UserID       string
	Secret       string
	AcceptURL    string
}

// requireRole re-fetches the caller's membership and succeeds only if its
// role set intersects the required set. A missing membership fails the
// same way as an insufficient role, and the result is never cached so
// role changes apply immediately.
func (s Service) requireRole(ctx context.Context, teamID, userID string, roles ...string) (*domain.Membership, error) {
	denied := apperr.Newf(apperr.KindForbidden, "you must be %s to perform this action", strings.Join(roles, " or "))
	member, err := s.members.GetMembership(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, denied
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not verify team role", err)
	}
	if !member.Confirmed || !member.HasAnyRole(roles...) {
		return nil, denied
	}
	return member, nil
}

func validateTeamInput(name, about string) error {
	if len(name) < nameMinLength {
		return apperr.Newf(apperr.KindInvalid, "name must be at least %d characters", nameMinLength)
	}
	if len(name) > nameMaxLength {
		return apperr.Newf(apperr.KindInvalid, "name must be less than %d characters", nameMaxLength)
	}
	if len(about) > aboutMaxLength {
		return apperr.Newf(apperr.KindInvalid, "about must be less than %d characters", aboutMaxLength)
	}
	return nil
}

// CreateInput carries a team creation request.
type CreateInput struct {
	Name  string
	About string
	Image *storage.ImageUpload
}

// Create registers a team with the caller as owner and admin. The team
// row and the owner membership are written in one transaction; the
// global team ceiling is enforced before anything is created.
func (s Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Team, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateTeamInput(input.Name, input.About); err != nil {
		return nil, err
	}
	count, err := s.teams.CountTeams(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not create team", err)
	}
	if count >= s.cfg.MaxTeams {
		return nil, apperr.Newf(apperr.KindConflict, "you have reached the maximum amount of teams allowed (%d)", s.cfg.MaxTeams)
	}

	avatarID := ""
	if input.Image != nil {
		if err := storage.ValidateImage(input.Image.Filename, input.Image.Size); err != nil {
			return nil, apperr.New(apperr.KindInvalid, err.Error())
		}
		avatarID = uuid.NewString()
		if err := s.images.Upload(ctx, s.cfg.AvatarBucket, avatarID, input.Image.Data, input.Image.Size, input.Image.ContentType); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not upload team avatar", err)
		}
	}

	now := time.Now().UTC()
	team := &domain.Team{
		ID:        uuid.NewString(),
		Name:      input.Name,
		About:     input.About,
		AvatarID:  avatarID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &domain.Membership{
		ID:        uuid.NewString(),
		TeamID:    team.ID,
		UserID:    userID,
		Roles:     []string{domain.RoleOwner, domain.RoleAdmin},
		Confirmed: true,
		CreatedAt: now,
		JoinedAt:  now,
	}
	if err := s.teams.CreateTeamWithOwner(ctx, team, owner); err != nil {
		// the upload preceded the write; roll the asset back
		if avatarID != "" {
			if derr := s.images.Delete(ctx, s.cfg.AvatarBucket, avatarID); derr != nil {
				s.logger.Warn("orphaned team avatar", "asset_id", avatarID, "error", derr)
			}
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not create team", err)
	}

	s.views.Invalidate(ctx, cache.TagTeams)
	s.feed.Publish(domain.ChangeEvent{
		Collection: domain.CollectionTeams,
		Type:       domain.ChangeCreate,
		DocumentID: team.ID,
		TeamID:     team.ID,
		Team:       team,
	})
	s.logger.Info("team created", "team_id", team.ID, "owner_id", userID)
	return team, nil
}

// Get returns a team with its member list. Any confirmed member may read
// it; the view is cached under the team's detail tag.
func (s Service) Get(ctx context.Context, userID, teamID string) (*Detail, error) {
	member, err := s.members.GetMembership(ctx, teamID, userID)
	if err != nil {
		return nil, apperr.New(apperr.KindForbidden, "you are not a member of this team")
	}
	if !member.Confirmed {
		return nil, apperr.New(apperr.KindForbidden, "you are not a member of this team")
	}

	key := "team:" + teamID
	if raw, ok := s.views.Get(ctx, key); ok {
		var detail Detail
		if err := json.Unmarshal(raw, &detail); err == nil {
			return &detail, nil
		}
	}

	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "team not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not load team", err)
	}
	members, err := s.members.ListMembers(ctx, teamID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not load team members", err)
	}
	detail := &Detail{Team: *team, Members: members}
	if raw, err := json.Marshal(detail); err == nil {
		s.views.Set(ctx, key, raw, []string{cache.TagTeam(teamID)})
	}
	return detail, nil
}

// List returns teams the caller belongs to, cached under the teams tag.
func (s Service) List(ctx context.Context, userID string) ([]domain.Team, error) {
	key := "teams:user:" + userID
	if raw, ok := s.views.Get(ctx, key); ok {
		var teams []domain.Team
		if err := json.Unmarshal(raw, &teams); err == nil {
			return teams, nil
		}
	}
	teams, err := s.teams.ListTeamsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list teams", err)
	}
	if raw, err := json.Marshal(teams); err == nil {
		s.views.Set(ctx, key, raw, []string{cache.TagTeams})
	}
	return teams, nil
}

// UpdateInput carries a team edit. A non-nil Image replaces the avatar;
// ClearImage removes it.
type UpdateInput struct {
	Name       string
	About      string
	Image      *storage.ImageUpload
	ClearImage bool
}

// Update replaces the team's name and about text and manages the avatar
// asset. Requires the admin or owner role.
func (s Service) Update(ctx context.Context, userID, teamID string, input UpdateInput) (*domain.Team, error) {
	if _, err := s.requireRole(ctx, teamID, userID, domain.RoleAdmin, domain.RoleOwner); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateTeamInput(input.Name, input.About); err != nil {
		return nil, err
	}
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "team not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not load team", err)
	}

	avatarID := team.AvatarID
	switch {
	case input.Image != nil:
		if err := storage.ValidateImage(input.Image.Filename, input.Image.Size); err != nil {
			return nil, apperr.New(apperr.KindInvalid, err.Error())
		}
		newID := uuid.NewString()
		if err := s.images.Upload(ctx, s.cfg.AvatarBucket, newID, input.Image.Data, input.Image.Size, input.Image.ContentType); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not upload team avatar", err)
		}
		if team.AvatarID != "" {
			if err := s.images.Delete(ctx, s.cfg.AvatarBucket, team.AvatarID); err != nil {
				s.logger.Warn("orphaned team avatar", "asset_id", team.AvatarID, "error", err)
			}
		}
		avatarID = newID
	case input.ClearImage && team.AvatarID != "":
		if err := s.images.Delete(ctx, s.cfg.AvatarBucket, team.AvatarID); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not delete team avatar", err)
		}
		avatarID = ""
	}

	team.Name = input.Name
	team.About = input.About
	team.AvatarID = avatarID
	team.UpdatedAt = time.Now().UTC()
	if err := s.teams.UpdateTeam(ctx, team); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not update team", err)
	}

	s.views.Invalidate(ctx, cache.TagTeams, cache.TagTeam(teamID))
	s.feed.Publish(domain.ChangeEvent{
		Collection: domain.CollectionTeams,
		Type:       domain.ChangeUpdate,
		DocumentID: team.ID,
		TeamID:     team.ID,
		Team:       team,
	})
	return team, nil
}

// Delete removes the team, its avatar asset and, via schema cascades, its
// memberships and team-scoped samples. Requires admin or owner.
func (s Service) Delete(ctx context.Context, userID, teamID string) error {
	if _, err := s.requireRole(ctx, teamID, userID, domain.RoleAdmin, domain.RoleOwner); err != nil {
		return err
	}
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "team not found")
		}
		return apperr.Wrap(apperr.KindInternal, "could not load team", err)
	}
	if team.AvatarID != "" {
		if err := s.images.Delete(ctx, s.cfg.AvatarBucket, team.AvatarID); err != nil {
			return apperr.Wrap(apperr.KindInternal, "could not delete team avatar", err)
		}
	}
	if err := s.teams.DeleteTeam(ctx, teamID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not delete team", err)
	}

	s.views.Invalidate(ctx, cache.TagTeams, cache.TagTeam(teamID))
	s.feed.Publish(domain.ChangeEvent{
		Collection: domain.CollectionTeams,
		Type:       domain.ChangeDelete,
		DocumentID: teamID,
		TeamID:     teamID,
	})
	s.logger.Info("team deleted", "team_id", teamID, "user_id", userID)
	return nil
}

// Invite creates a pending membership for the email address, provisioning
// an account and profile when the email is unknown. Requires admin or
// owner. The returned reference carries the one-time accept secret.
func (s Service) Invite(ctx context.Context, callerID, teamID, email string) (*InviteRef, error) {
	if _, err := s.requireRole(ctx, teamID, callerID, domain.RoleAdmin, domain.RoleOwner); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.New(apperr.KindInvalid, "invalid email address")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.provisionInvitedUser(ctx, email)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not invite member", err)
	}

	if existing, err := s.members.GetMembership(ctx, teamID, user.ID); err == nil {
		if existing.Confirmed {
			return nil, apperr.New(apperr.KindConflict, "this user is already a member of the team")
		}
		return nil, apperr.New(apperr.KindConflict, "this user already has a pending invitation")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, "could not invite member", err)
	}

	secret := uuid.NewString()
	member := &domain.Membership{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		UserID:       user.ID,
		Roles:        []string{},
		Confirmed:    false,
		InvitedEmail: email,
		SecretHash:   crypto.HashToken(secret),
		CreatedAt:    time.Now().UTC(),
		JoinedAt:     time.Now().UTC(),
	}
	if err := s.members.CreateMembership(ctx, member); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.New(apperr.KindConflict, "this user already has a pending invitation")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not invite member", err)
	}

	s.views.Invalidate(ctx, cache.TagTeam(teamID))
	s.logger.Info("member invited", "team_id", teamID, "user_id", user.ID)
	return &InviteRef{
		TeamID:       teamID,
		MembershipID: member.ID,
		UserID:       user.ID,
		Secret:       secret,
		AcceptURL: fmt.Sprintf("%s/accept/%s?membershipId=%s&userId=%s&secret=%s",
			s.cfg.AppURL, teamID, member.ID, user.ID, secret),
	}, nil
}

// provisionInvitedUser creates a placeholder account for an email that
// has never signed up. The password is random and unusable until the
// user completes a recovery.
func (s Service) provisionInvitedUser(ctx context.Context, email string) (*domain.User, error) {
	hash, err := crypto.HashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}
	name, _, _ := strings.Cut(email, "@")
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	profile := &domain.Profile{UserID: user.ID, Name: name, UpdatedAt: time.Now().UTC()}
	if err := s.users.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return user, nil
}

// Accept activates a pending membership. The membership id, team id, user
// id and one-time secret must all match; the secret is cleared on success.
func (s Service) Accept(ctx context.Context, teamID, membershipID, userID, secret string) (*domain.Membership, error) {
	invalid := apperr.New(apperr.KindUnauthenticated, "this invitation is invalid or has already been used")
	member, err := s.members.GetMembershipByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not accept invitation", err)
	}
	if member.TeamID != teamID || member.UserID != userID || member.Confirmed {
		return nil, invalid
	}
	if len(member.SecretHash) == 0 || !crypto.CompareToken(member.SecretHash, secret) {
		return nil, invalid
	}
	if err := s.members.ActivateMembership(ctx, membershipID); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not accept invitation", err)
	}
	member.Confirmed = true
	member.SecretHash = nil

	s.views.Invalidate(ctx, cache.TagTeams, cache.TagTeam(teamID))
	s.logger.Info("invitation accepted", "team_id", teamID, "user_id", userID)
	return member, nil
}

// Leave removes the caller's membership. The owner cannot leave; they
// must transfer ownership first. Returns another team id the caller still
// belongs to, if any.
func (s Service) Leave(ctx context.Context, userID, teamID string) (string, error) {
	member, err := s.members.GetMembership(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.New(apperr.KindForbidden, "you are not a member of this team")
		}
		return "", apperr.Wrap(apperr.KindInternal, "could not leave team", err)
	}
	if member.HasRole(domain.RoleOwner) {
		return "", apperr.New(apperr.KindForbidden, "you cannot leave a team you own; transfer ownership first")
	}
	if err := s.members.DeleteMembership(ctx, member.ID); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "could not leave team", err)
	}

	s.views.Invalidate(ctx, cache.TagTeams, cache.TagTeam(teamID))
	s.logger.Info("member left", "team_id", teamID, "user_id", userID)

	remaining, err := s.teams.ListTeamsByUser(ctx, userID)
	if err != nil || len(remaining) == 0 {
		return "", nil
	}
	return remaining[0].ID, nil
}

// RemoveMember removes a member from the team. Requires admin or owner;
// the owner can never be removed, and an admin may only be removed by the
// owner.
func (s Service) RemoveMember(ctx context.Context, callerID, teamID, targetUserID string) error {
	caller, err := s.requireRole(ctx, teamID, callerID, domain.RoleAdmin, domain.RoleOwner)
	if err != nil {
		return err
	}
	target, err := s.members.GetMembership(ctx, teamID, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user is not a member of this team")
		}
		return apperr.Wrap(apperr.KindInternal, "could not remove member", err)
	}
	if target.HasRole(domain.RoleOwner) {
		return apperr.New(apperr.KindForbidden, "you cannot remove the owner of the team")
	}
	if target.HasRole(domain.RoleAdmin) && !caller.HasRole(domain.RoleOwner) {
		return apperr.New(apperr.KindForbidden, "only the team owner can remove admin members")
	}
	if err := s.members.DeleteMembership(ctx, target.ID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not remove member", err)
	}

	s.views.Invalidate(ctx, cache.TagTeam(teamID))
	s.logger.Info("member removed", "team_id", teamID, "user_id", targetUserID, "by", callerID)
	return nil
}

// Promote grants the admin role. Owner-only; the owner's own roles cannot
// be altered through this path.
func (s Service) Promote(ctx context.Context, callerID, teamID, targetUserID string) error {
	return s.setAdminRole(ctx, callerID, teamID, targetUserID, []string{domain.RoleAdmin})
}

// Demote revokes the admin role. Owner-only; the owner cannot be demoted.
func (s Service) Demote(ctx context.Context, callerID, teamID, targetUserID string) error {
	return s.setAdminRole(ctx, callerID, teamID, targetUserID, []string{})
}

func (s Service) setAdminRole(ctx context.Context, callerID, teamID, targetUserID string, roles []string) error {
	if _, err := s.requireRole(ctx, teamID, callerID, domain.RoleOwner); err != nil {
		return err
	}
	target, err := s.members.GetMembership(ctx, teamID, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user is not a member of this team")
		}
		return apperr.Wrap(apperr.KindInternal, "could not update member role", err)
	}
	if target.HasRole(domain.RoleOwner) {
		return apperr.New(apperr.KindForbidden, "you cannot change the owner's role")
	}
	if err := s.members.UpdateMembershipRoles(ctx, target.ID, roles); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not update member role", err)
	}

	s.views.Invalidate(ctx, cache.TagTeam(teamID))
	s.logger.Info("member role updated", "team_id", teamID, "user_id", targetUserID, "roles", roles)
	return nil
}

// TransferOwnership makes the target the team's owner and demotes the
// caller to admin, in one transaction so the team always has exactly one
// owner. Owner-only; the target must be a confirmed member.
func (s Service) TransferOwnership(ctx context.Context, callerID, teamID, targetUserID string) error {
	if _, err := s.requireRole(ctx, teamID, callerID, domain.RoleOwner); err != nil {
		return err
	}
	if targetUserID == callerID {
		return apperr.New(apperr.KindInvalid, "you already own this team")
	}
	target, err := s.members.GetMembership(ctx, teamID, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user is not a member of this team")
		}
		return apperr.Wrap(apperr.KindInternal, "could not transfer ownership", err)
	}
	if !target.Confirmed {
		return apperr.New(apperr.KindInvalid, "ownership can only be transferred to a confirmed member")
	}
	if err := s.members.TransferOwnership(ctx, teamID, callerID, targetUserID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not transfer ownership", err)
	}

	s.views.Invalidate(ctx, cache.TagTeam(teamID))
	s.logger.Info("ownership transferred", "team_id", teamID, "from", callerID, "to", targetUserID)
	return nil
}
