// Package storage defines persistence contracts for profile state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested profile record is missing.
var ErrNotFound = errors.New("record not found")

// Profile stores one user profile row.
type Profile struct {
	UserID             string
	Email              string
	CollegeDomain      string
	Role               string
	Source             string
	IsVerified         bool
	OnboardingComplete bool
	DisplayName        string
	LastActiveAt       time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProfilePage stores a page of profiles.
type ProfilePage struct {
	Profiles      []Profile
	NextPageToken string
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	PutProfile(ctx context.Context, profile Profile) error
	GetProfile(ctx context.Context, userID string) (Profile, error)
	ListMentorsByDomain(ctx context.Context, collegeDomain string, pageSize int, pageToken string) (ProfilePage, error)
}
