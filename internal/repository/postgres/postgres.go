package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.SessionRepository    = (*Repository)(nil)
	_ repository.LoginTokenRepository = (*Repository)(nil)
	_ repository.TeamRepository       = (*Repository)(nil)
	_ repository.MembershipRepository = (*Repository)(nil)
	_ repository.SampleRepository     = (*Repository)(nil)
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`
	row := r.pool.QueryRow(ctx, query, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserName renames the account record.
func (r *Repository) UpdateUserName(ctx context.Context, id, name string) error {
	const query = `UPDATE users SET name = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the account's password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertProfile writes the denormalized profile document.
func (r *Repository) UpsertProfile(ctx context.Context, profile *domain.Profile) error {
	const query = `INSERT INTO profiles (user_id, name, about, avatar_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			about = EXCLUDED.about,
			avatar_id = EXCLUDED.avatar_id,
			updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query, profile.UserID, profile.Name, profile.About, profile.AvatarID, profile.UpdatedAt)
	return err
}

// GetProfile fetches a profile document by owning user.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `SELECT user_id, name, about, avatar_id, updated_at FROM profiles WHERE user_id = $1`
	row := r.pool.QueryRow(ctx, query, userID)
	var p domain.Profile
	if err := row.Scan(&p.UserID, &p.Name, &p.About, &p.AvatarID, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateSession inserts a login session.
func (r *Repository) CreateSession(ctx context.Context, session *domain.Session) error {
	const query = `INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, session.ID, session.UserID, session.CreatedAt, session.ExpiresAt)
	return err
}

// GetSession retrieves a live session. Expired rows are treated as absent.
func (r *Repository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	const query = `SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = $1 AND expires_at > now()`
	row := r.pool.QueryRow(ctx, query, id)
	var s domain.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// DeleteSessionsByUser removes every session of a user.
func (r *Repository) DeleteSessionsByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// CreateLoginToken stores a one-time login secret.
func (r *Repository) CreateLoginToken(ctx context.Context, token *domain.LoginToken) error {
	const query = `INSERT INTO login_tokens (id, user_id, secret_hash, purpose, expires_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, token.ID, token.UserID, token.SecretHash, token.Purpose, token.ExpiresAt)
	return err
}

// ConsumeLoginToken removes and returns a live token in one statement.
func (r *Repository) ConsumeLoginToken(ctx context.Context, id string) (*domain.LoginToken, error) {
	const query = `DELETE FROM login_tokens
		WHERE id = $1 AND expires_at > now()
		RETURNING id, user_id, secret_hash, purpose, expires_at`
	row := r.pool.QueryRow(ctx, query, id)
	var t domain.LoginToken
	if err := row.Scan(&t.ID, &t.UserID, &t.SecretHash, &t.Purpose, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateTeamWithOwner inserts the team document and the creator's
// membership atomically.
func (r *Repository) CreateTeamWithOwner(ctx context.Context, team *domain.Team, owner *domain.Membership) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create team: %w", err)
	}
	defer tx.Rollback(ctx)

	const teamQuery = `INSERT INTO teams (id, name, about, avatar_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, teamQuery, team.ID, team.Name, team.About, team.AvatarID, team.CreatedAt, team.UpdatedAt); err != nil {
		return err
	}
	const memberQuery = `INSERT INTO memberships (id, team_id, user_id, roles, confirmed, invited_email, created_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.Exec(ctx, memberQuery, owner.ID, owner.TeamID, owner.UserID, owner.Roles, owner.Confirmed, owner.InvitedEmail, owner.CreatedAt, owner.JoinedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, about, avatar_id, created_at, updated_at FROM teams WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, teamID)
	var team domain.Team
	if err := row.Scan(&team.ID, &team.Name, &team.About, &team.AvatarID, &team.CreatedAt, &team.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &team, nil
}

// UpdateTeam replaces the team's mutable fields.
func (r *Repository) UpdateTeam(ctx context.Context, team *domain.Team) error {
	const query = `UPDATE teams SET name = $2, about = $3, avatar_id = $4, updated_at = $5 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, team.ID, team.Name, team.About, team.AvatarID, team.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteTeam removes the team row; memberships and team-scoped samples
// cascade at the schema level.
func (r *Repository) DeleteTeam(ctx context.Context, teamID string) error {
	const query = `DELETE FROM teams WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, teamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountTeams returns the system-wide team count.
func (r *Repository) CountTeams(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM teams`
	row := r.pool.QueryRow(ctx, query)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListTeamsByUser returns teams with a confirmed membership for the user.
func (r *Repository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT t.id, t.name, t.about, t.avatar_id, t.created_at, t.updated_at
		FROM teams t
		INNER JOIN memberships m ON m.team_id = t.id
		WHERE m.user_id = $1 AND m.confirmed
		ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.About, &team.AvatarID, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// CreateMembership inserts a membership row.
func (r *Repository) CreateMembership(ctx context.Context, member *domain.Membership) error {
	const query = `INSERT INTO memberships (id, team_id, user_id, roles, confirmed, invited_email, secret_hash, created_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query, member.ID, member.TeamID, member.UserID, member.Roles, member.Confirmed, member.InvitedEmail, member.SecretHash, member.CreatedAt, member.JoinedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	if err := row.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Roles, &m.Confirmed, &m.InvitedEmail, &m.SecretHash, &m.CreatedAt, &m.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

const membershipColumns = `id, team_id, user_id, roles, confirmed, invited_email, secret_hash, created_at, joined_at`

// GetMembership fetches a user's membership in a team.
func (r *Repository) GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE team_id = $1 AND user_id = $2`
	return scanMembership(r.pool.QueryRow(ctx, query, teamID, userID))
}

// GetMembershipByID fetches a membership by identifier.
func (r *Repository) GetMembershipByID(ctx context.Context, id string) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`
	return scanMembership(r.pool.QueryRow(ctx, query, id))
}

// ListMembers returns memberships joined with profile display fields.
func (r *Repository) ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	const query = `SELECT m.user_id, COALESCE(p.name, ''), COALESCE(p.avatar_id, ''), m.roles, m.confirmed, m.joined_at
		FROM memberships m
		LEFT JOIN profiles p ON p.user_id = m.user_id
		WHERE m.team_id = $1
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.TeamMember, 0)
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.AvatarID, &m.Roles, &m.Confirmed, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMembershipRoles replaces the role set of a membership.
func (r *Repository) UpdateMembershipRoles(ctx context.Context, id string, roles []string) error {
	const query = `UPDATE memberships SET roles = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, roles)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ActivateMembership confirms a pending invite and clears its secret.
func (r *Repository) ActivateMembership(ctx context.Context, id string) error {
	const query = `UPDATE memberships SET confirmed = true, secret_hash = NULL, joined_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteMembership removes a membership row.
func (r *Repository) DeleteMembership(ctx context.Context, id string) error {
	const query = `DELETE FROM memberships WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TransferOwnership swaps the owner role between two members atomically,
// so the team never observes zero or two owners.
func (r *Repository) TransferOwnership(ctx context.Context, teamID, fromUserID, toUserID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ownership transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	const demote = `UPDATE memberships SET roles = $3 WHERE team_id = $1 AND user_id = $2 AND confirmed`
	tag, err := tx.Exec(ctx, demote, teamID, fromUserID, []string{domain.RoleAdmin})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	const promote = `UPDATE memberships SET roles = $3 WHERE team_id = $1 AND user_id = $2 AND confirmed`
	tag, err = tx.Exec(ctx, promote, teamID, toUserID, []string{domain.RoleOwner, domain.RoleAdmin})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// CreateSample inserts a sample record.
func (r *Repository) CreateSample(ctx context.Context, sample *domain.Sample) error {
	const query = `INSERT INTO samples (id, name, description, image_id, user_id, team_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`
	_, err := r.pool.Exec(ctx, query, sample.ID, sample.Name, sample.Description, sample.ImageID, sample.UserID, sample.TeamID, sample.CreatedAt, sample.UpdatedAt)
	return err
}

func scanSample(row pgx.Row) (*domain.Sample, error) {
	var s domain.Sample
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.ImageID, &s.UserID, &s.TeamID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

const sampleColumns = `id, name, description, image_id, user_id, COALESCE(team_id, ''), created_at, updated_at`

// GetSampleByID fetches a sample by identifier.
func (r *Repository) GetSampleByID(ctx context.Context, id string) (*domain.Sample, error) {
	query := `SELECT ` + sampleColumns + ` FROM samples WHERE id = $1`
	return scanSample(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) listSamples(ctx context.Context, query, arg string) ([]domain.Sample, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]domain.Sample, 0)
	for rows.Next() {
		var s domain.Sample
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.ImageID, &s.UserID, &s.TeamID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ListSamplesByUser returns samples owned by the user, newest first.
func (r *Repository) ListSamplesByUser(ctx context.Context, userID string) ([]domain.Sample, error) {
	query := `SELECT ` + sampleColumns + ` FROM samples WHERE user_id = $1 ORDER BY created_at DESC`
	return r.listSamples(ctx, query, userID)
}

// ListSamplesByTeam returns samples scoped to the team, newest first.
func (r *Repository) ListSamplesByTeam(ctx context.Context, teamID string) ([]domain.Sample, error) {
	query := `SELECT ` + sampleColumns + ` FROM samples WHERE team_id = $1 ORDER BY created_at DESC`
	return r.listSamples(ctx, query, teamID)
}

// UpdateSample replaces a sample's mutable fields.
func (r *Repository) UpdateSample(ctx context.Context, sample *domain.Sample) error {
	const query = `UPDATE samples SET name = $2, description = $3, image_id = $4, updated_at = $5 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, sample.ID, sample.Name, sample.Description, sample.ImageID, sample.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteSample removes a sample record.
func (r *Repository) DeleteSample(ctx context.Context, id string) error {
	const query = `DELETE FROM samples WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
