package domain

import "time"

// User represents a platform account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Profile is the denormalized display document for a user. It is created
// on first sign-up, OAuth exchange or team invite and mutated via profile
// edits; it is never deleted.
type Profile struct {
	UserID    string
	Name      string
	About     string
	AvatarID  string
	UpdatedAt time.Time
}

// Session is a server-side login session referenced by the cookie token.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LoginToken is a one-time secret exchangeable for a session. Minted by
// the OAuth provider callback flow, invite acceptance and password
// recovery; consumed exactly once.
type LoginToken struct {
	ID         string
	UserID     string
	SecretHash []byte
	Purpose    string
	ExpiresAt  time.Time
}

// Login token purposes.
const (
	TokenPurposeOAuth    = "oauth"
	TokenPurposeInvite   = "invite"
	TokenPurposeRecovery = "recovery"
)
