// Package domain implements profile lifecycle behavior: validation,
// normalization, the identity snapshot projection served to clients, and
// change notifications for the realtime sync layer.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/services/profiles/storage"
)

const (
	RoleStudent = "student"
	RoleMentor  = "mentor"

	SourceEmail  = "email"
	SourceGoogle = "google"
	SourceSSO    = "sso"

	maxDisplayNameRunes = 80

	defaultPageSize = 50
	maxPageSize     = 200
)

// Profile is one user profile.
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

// IdentitySnapshot is the authoritative identity tuple projected from a
// profile. This is the shape the client-side identity cache fetches.
type IdentitySnapshot struct {
	UserID             string
	CollegeDomain      string
	Role               string
	Source             string
	IsVerified         bool
	OnboardingComplete bool
}

// IdentitySnapshot projects the identity tuple out of a full profile.
func (p Profile) IdentitySnapshot() IdentitySnapshot {
	return IdentitySnapshot{
		UserID:             p.UserID,
		CollegeDomain:      p.CollegeDomain,
		Role:               p.Role,
		Source:             p.Source,
		IsVerified:         p.IsVerified,
		OnboardingComplete: p.OnboardingComplete,
	}
}

// ProfilePage is a paged mentor directory view.
type ProfilePage struct {
	Profiles      []Profile
	NextPageToken string
}

// Publisher receives profile change notifications after successful writes.
// A nil before means the profile was just created.
type Publisher interface {
	PublishProfileChange(ctx context.Context, before, after *Profile)
}

// CreateProfileInput describes a new profile.
type CreateProfileInput struct {
	UserID        string
	Email         string
	CollegeDomain string
	Role          string
	Source        string
	DisplayName   string
}

// UpdateProfileInput patches one profile; nil fields are left unchanged.
type UpdateProfileInput struct {
	UserID             string
	Email              *string
	CollegeDomain      *string
	Role               *string
	DisplayName        *string
	IsVerified         *bool
	OnboardingComplete *bool
}

// ListMentorsInput configures the per-domain mentor directory listing.
type ListMentorsInput struct {
	CollegeDomain string
	PageSize      int
	PageToken     string
}

// Service orchestrates profile lifecycle behavior.
type Service struct {
	store     storage.ProfileStore
	publisher Publisher
	clock     func() time.Time
}

// NewService constructs profile domain use-cases. publisher may be nil when
// change fanout is not wired.
func NewService(store storage.ProfileStore, publisher Publisher, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:     store,
		publisher: publisher,
		clock:     clock,
	}
}

// CreateProfile validates and stores a new profile.
func (s *Service) CreateProfile(ctx context.Context, input CreateProfileInput) (Profile, error) {
	if s == nil || s.store == nil {
		return Profile{}, errors.New("profile store is not configured")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Profile{}, apperrors.New(apperrors.CodeProfileUserIDRequired, "user id is required")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return Profile{}, err
	}
	collegeDomain := strings.ToLower(strings.TrimSpace(input.CollegeDomain))
	if collegeDomain == "" {
		return Profile{}, apperrors.New(apperrors.CodeProfileDomainRequired, "college domain is required")
	}
	role := strings.TrimSpace(input.Role)
	if !validRole(role) {
		return Profile{}, apperrors.WithMetadata(
			apperrors.CodeProfileRoleInvalid,
			"unknown profile role",
			map[string]string{"Role": role},
		)
	}
	source := strings.TrimSpace(input.Source)
	if !validSource(source) {
		return Profile{}, apperrors.WithMetadata(
			apperrors.CodeProfileSourceInvalid,
			"unknown signup source",
			map[string]string{"Source": source},
		)
	}
	displayName, err := normalizeDisplayName(input.DisplayName)
	if err != nil {
		return Profile{}, err
	}

	now := s.nowUTC()
	profile := Profile{
		UserID:        userID,
		Email:         email,
		CollegeDomain: collegeDomain,
		Role:          role,
		Source:        source,
		DisplayName:   displayName,
		LastActiveAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.PutProfile(ctx, toStorage(profile)); err != nil {
		return Profile{}, err
	}
	s.publish(ctx, nil, &profile)
	return profile, nil
}

// UpdateProfile applies a patch to one profile and publishes the before and
// after values so the routing layer can diff identity-relevant fields.
func (s *Service) UpdateProfile(ctx context.Context, input UpdateProfileInput) (Profile, error) {
	if s == nil || s.store == nil {
		return Profile{}, errors.New("profile store is not configured")
	}
	before, err := s.getProfile(ctx, input.UserID)
	if err != nil {
		return Profile{}, err
	}

	profile := before
	if input.Email != nil {
		email, err := normalizeEmail(*input.Email)
		if err != nil {
			return Profile{}, err
		}
		profile.Email = email
	}
	if input.CollegeDomain != nil {
		collegeDomain := strings.ToLower(strings.TrimSpace(*input.CollegeDomain))
		if collegeDomain == "" {
			return Profile{}, apperrors.New(apperrors.CodeProfileDomainRequired, "college domain is required")
		}
		profile.CollegeDomain = collegeDomain
	}
	if input.Role != nil {
		role := strings.TrimSpace(*input.Role)
		if !validRole(role) {
			return Profile{}, apperrors.WithMetadata(
				apperrors.CodeProfileRoleInvalid,
				"unknown profile role",
				map[string]string{"Role": role},
			)
		}
		profile.Role = role
	}
	if input.DisplayName != nil {
		displayName, err := normalizeDisplayName(*input.DisplayName)
		if err != nil {
			return Profile{}, err
		}
		profile.DisplayName = displayName
	}
	if input.IsVerified != nil {
		profile.IsVerified = *input.IsVerified
	}
	if input.OnboardingComplete != nil {
		profile.OnboardingComplete = *input.OnboardingComplete
	}
	profile.UpdatedAt = s.nowUTC()

	if err := s.store.PutProfile(ctx, toStorage(profile)); err != nil {
		return Profile{}, err
	}
	s.publish(ctx, &before, &profile)
	return profile, nil
}

// TouchLastActive bumps the last-active timestamp. This is the canonical
// identity-irrelevant update: it publishes a change event but must never
// cascade into identity invalidations downstream.
func (s *Service) TouchLastActive(ctx context.Context, userID string) (Profile, error) {
	if s == nil || s.store == nil {
		return Profile{}, errors.New("profile store is not configured")
	}
	before, err := s.getProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	profile := before
	now := s.nowUTC()
	profile.LastActiveAt = now
	profile.UpdatedAt = now

	if err := s.store.PutProfile(ctx, toStorage(profile)); err != nil {
		return Profile{}, err
	}
	s.publish(ctx, &before, &profile)
	return profile, nil
}

// GetProfile returns one profile by user id.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if s == nil || s.store == nil {
		return Profile{}, errors.New("profile store is not configured")
	}
	return s.getProfile(ctx, userID)
}

// GetIdentitySnapshot returns the identity projection for one user.
func (s *Service) GetIdentitySnapshot(ctx context.Context, userID string) (IdentitySnapshot, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return IdentitySnapshot{}, err
	}
	return profile.IdentitySnapshot(), nil
}

// ListMentors lists the mentor directory for one college domain.
func (s *Service) ListMentors(ctx context.Context, input ListMentorsInput) (ProfilePage, error) {
	if s == nil || s.store == nil {
		return ProfilePage{}, errors.New("profile store is not configured")
	}
	collegeDomain := strings.ToLower(strings.TrimSpace(input.CollegeDomain))
	if collegeDomain == "" {
		return ProfilePage{}, apperrors.New(apperrors.CodeProfileDomainRequired, "college domain is required")
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	stored, err := s.store.ListMentorsByDomain(ctx, collegeDomain, pageSize, strings.TrimSpace(input.PageToken))
	if err != nil {
		return ProfilePage{}, err
	}
	page := ProfilePage{
		Profiles:      make([]Profile, 0, len(stored.Profiles)),
		NextPageToken: stored.NextPageToken,
	}
	for _, record := range stored.Profiles {
		page.Profiles = append(page.Profiles, fromStorage(record))
	}
	return page, nil
}

func (s *Service) getProfile(ctx context.Context, userID string) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, apperrors.New(apperrors.CodeProfileUserIDRequired, "user id is required")
	}
	stored, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Profile{}, apperrors.Wrap(apperrors.CodeNotFound, "profile not found", err)
		}
		return Profile{}, err
	}
	return fromStorage(stored), nil
}

func (s *Service) publish(ctx context.Context, before, after *Profile) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishProfileChange(ctx, before, after)
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func validRole(role string) bool {
	switch role {
	case RoleStudent, RoleMentor:
		return true
	default:
		return false
	}
}

func validSource(source string) bool {
	switch source {
	case SourceEmail, SourceGoogle, SourceSSO:
		return true
	default:
		return false
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", apperrors.New(apperrors.CodeProfileEmailInvalid, "email address is invalid")
	}
	return email, nil
}

func normalizeDisplayName(displayName string) (string, error) {
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameRunes {
		return "", apperrors.WithMetadata(
			apperrors.CodeProfileDisplayNameLong,
			"display name is too long",
			map[string]string{"Max": "80"},
		)
	}
	return displayName, nil
}

func toStorage(profile Profile) storage.Profile {
	return storage.Profile(profile)
}

func fromStorage(record storage.Profile) Profile {
	return Profile(record)
}
