package domain

import "time"

// Sample is a user-owned content record, optionally scoped to a team.
type Sample struct {
	ID          string
	Name        string
	Description string
	ImageID     string
	UserID      string
	TeamID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SampleView is a sample with denormalized owner and team display fields
// attached for list rendering.
type SampleView struct {
	Sample
	UserName     string
	UserAvatarID string
	TeamName     string
	TeamAvatarID string
}
