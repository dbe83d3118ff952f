package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/okonek/teamspace/internal/apperr"
	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/repository"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/pkg/config"
	"github.com/okonek/teamspace/pkg/crypto"
	jwtpkg "github.com/okonek/teamspace/pkg/jwt"
)

const (
	nameMinLength  = 2
	nameMaxLength  = 50
	aboutMaxLength = 256
)

// Service handles accounts, sessions, one-time login tokens and profiles.
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   repository.LoginTokenRepository
	images   storage.ImageStore
	logger   *slog.Logger
	cfg      config.AppConfig
}

// New constructs a Service.
func New(users repository.UserRepository, sessions repository.SessionRepository, tokens repository.LoginTokenRepository, images storage.ImageStore, logger *slog.Logger, cfg config.AppConfig) Service {
	return Service{users: users, sessions: sessions, tokens: tokens, images: images, logger: logger, cfg: cfg}
}

// Credentials is an established session plus its signed cookie token.
type Credentials struct {
	User    *domain.User
	Session *domain.Session
	Token   string
}

func validateName(name string) error {
	if len(name) < nameMinLength {
		return apperr.Newf(apperr.KindInvalid, "name must be at least %d characters", nameMinLength)
	}
	if len(name) > nameMaxLength {
		return apperr.Newf(apperr.KindInvalid, "name must be less than %d characters", nameMaxLength)
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.New(apperr.KindInvalid, "invalid email address")
	}
	return nil
}

// SignUp registers a user, provisions the profile document and opens a
// session.
func (s Service) SignUp(ctx context.Context, name, email, password string) (*Credentials, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := crypto.ValidatePassword(password); err != nil {
		return nil, apperr.New(apperr.KindInvalid, err.Error())
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not create account", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.New(apperr.KindConflict, "an account with this email already exists")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not create account", err)
	}
	if err := s.EnsureProfile(ctx, user.ID, name); err != nil {
		return nil, err
	}
	creds, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return creds, nil
}

// SignIn authenticates a user and opens a session.
func (s Service) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not sign in", err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	}
	creds, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return creds, nil
}

// SignOut deletes the session referenced by the cookie token.
func (s Service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not sign out", err)
	}
	return nil
}

// ValidateSession parses the cookie token and re-validates the session
// row, so revoked or expired sessions fail immediately.
func (s Service) ValidateSession(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	claims, err := jwtpkg.Parse(strings.TrimSpace(token), s.cfg.SessionSecret)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	if session.UserID != claims.UserID {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	return user, session, nil
}

// MintLoginToken creates a one-time secret for the user, returned in the
// "{tokenID}.{secret}" form carried by OAuth and invite redirects.
func (s Service) MintLoginToken(ctx context.Context, userID, purpose string) (string, error) {
	raw := uuid.NewString()
	token := &domain.LoginToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		SecretHash: crypto.HashToken(raw),
		Purpose:    purpose,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.LoginTokenTTL),
	}
	if err := s.tokens.CreateLoginToken(ctx, token); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "could not create login token", err)
	}
	return fmt.Sprintf("%s.%s", token.ID, raw), nil
}

// ExchangeLoginToken consumes a one-time secret and opens a session for
// its user, provisioning a profile if the user never had one. Used by the
// OAuth callback and the invite accept flow.
func (s Service) ExchangeLoginToken(ctx context.Context, userID, secret string) (*Credentials, error) {
	tokenID, raw, ok := strings.Cut(secret, ".")
	if !ok {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid login token")
	}
	token, err := s.tokens.ConsumeLoginToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindUnauthenticated, "invalid login token")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not verify login token", err)
	}
	if token.UserID != userID || !crypto.CompareToken(token.SecretHash, raw) {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid login token")
	}
	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid login token")
	}
	if err := s.EnsureProfile(ctx, user.ID, user.Name); err != nil {
		return nil, err
	}
	creds, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login token exchanged", "user_id", user.ID, "purpose", token.Purpose)
	return creds, nil
}

// AvatarURL resolves an avatar asset to a short-lived fetchable link.
func (s Service) AvatarURL(ctx context.Context, avatarID string) (string, error) {
	if avatarID == "" {
		return "", apperr.New(apperr.KindNotFound, "avatar not found")
	}
	url, err := s.images.URL(ctx, s.cfg.AvatarBucket, avatarID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "could not resolve avatar", err)
	}
	return url, nil
}

// SessionFor opens a session for an already verified user. The invite
// accept flow calls it after the membership secret proves control of the
// invited account.
func (s Service) SessionFor(ctx context.Context, userID string) (*Credentials, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	if err := s.EnsureProfile(ctx, user.ID, user.Name); err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// RequestRecovery mints a password recovery secret for the account. The
// caller is responsible for delivering it; an unknown email reports
// success without minting so account existence is not revealed.
func (s Service) RequestRecovery(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", apperr.Wrap(apperr.KindInternal, "could not start recovery", err)
	}
	return s.MintLoginToken(ctx, user.ID, domain.TokenPurposeRecovery)
}

// ConfirmRecovery consumes a recovery secret and replaces the password,
// revoking every open session of the account.
func (s Service) ConfirmRecovery(ctx context.Context, userID, secret, newPassword string) error {
	if err := crypto.ValidatePassword(newPassword); err != nil {
		return apperr.New(apperr.KindInvalid, err.Error())
	}
	tokenID, raw, ok := strings.Cut(secret, ".")
	if !ok {
		return apperr.New(apperr.KindUnauthenticated, "invalid recovery token")
	}
	token, err := s.tokens.ConsumeLoginToken(ctx, tokenID)
	if err != nil {
		return apperr.New(apperr.KindUnauthenticated, "invalid recovery token")
	}
	if token.UserID != userID || token.Purpose != domain.TokenPurposeRecovery || !crypto.CompareToken(token.SecretHash, raw) {
		return apperr.New(apperr.KindUnauthenticated, "invalid recovery token")
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not reset password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not reset password", err)
	}
	if err := s.sessions.DeleteSessionsByUser(ctx, userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not reset password", err)
	}
	s.logger.Info("password reset", "user_id", userID)
	return nil
}

// EnsureProfile creates the profile document if the user has none.
func (s Service) EnsureProfile(ctx context.Context, userID, name string) error {
	if _, err := s.users.GetProfile(ctx, userID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindInternal, "could not load profile", err)
	}
	profile := &domain.Profile{
		UserID:    userID,
		Name:      name,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.users.UpsertProfile(ctx, profile); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not create profile", err)
	}
	return nil
}

// GetProfile returns the user's profile document.
func (s Service) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "profile not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not load profile", err)
	}
	return profile, nil
}

// UpdateProfileInput carries a profile edit. A non-nil Image replaces the
// avatar; ClearImage removes it.
type UpdateProfileInput struct {
	Name       string
	About      string
	Image      *storage.ImageUpload
	ClearImage bool
}

// UpdateProfile replaces the profile's name and about text and manages
// the avatar asset, deleting the previous asset on replace or clear.
func (s Service) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.Profile, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateName(input.Name); err != nil {
		return nil, err
	}
	if len(input.About) > aboutMaxLength {
		return nil, apperr.Newf(apperr.KindInvalid, "about must be less than %d characters", aboutMaxLength)
	}
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	avatarID := profile.AvatarID
	switch {
	case input.Image != nil:
		if err := storage.ValidateImage(input.Image.Filename, input.Image.Size); err != nil {
			return nil, apperr.New(apperr.KindInvalid, err.Error())
		}
		newID := uuid.NewString()
		if err := s.images.Upload(ctx, s.cfg.AvatarBucket, newID, input.Image.Data, input.Image.Size, input.Image.ContentType); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not upload avatar", err)
		}
		if profile.AvatarID != "" {
			if err := s.images.Delete(ctx, s.cfg.AvatarBucket, profile.AvatarID); err != nil {
				s.logger.Warn("orphaned avatar asset", "asset_id", profile.AvatarID, "error", err)
			}
		}
		avatarID = newID
	case input.ClearImage && profile.AvatarID != "":
		if err := s.images.Delete(ctx, s.cfg.AvatarBucket, profile.AvatarID); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not delete avatar", err)
		}
		avatarID = ""
	}

	if err := s.users.UpdateUserName(ctx, userID, input.Name); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not update profile", err)
	}
	updated := &domain.Profile{
		UserID:    userID,
		Name:      input.Name,
		About:     input.About,
		AvatarID:  avatarID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.users.UpsertProfile(ctx, updated); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not update profile", err)
	}
	return updated, nil
}

func (s Service) openSession(ctx context.Context, user *domain.User) (*Credentials, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not create session", err)
	}
	token, err := jwtpkg.GenerateToken(user.ID, session.ID, s.cfg.SessionSecret, s.cfg.SessionTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not create session", err)
	}
	return &Credentials{User: user, Session: session, Token: token}, nil
}
