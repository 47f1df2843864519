package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/campuslink/campuslink/internal/services/profiles/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func testProfile(userID, role, collegeDomain string) storage.Profile {
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return storage.Profile{
		UserID:        userID,
		Email:         userID + "@" + collegeDomain,
		CollegeDomain: collegeDomain,
		Role:          role,
		Source:        "email",
		LastActiveAt:  createdAt,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestPutAndGetProfileRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	profile := testProfile("user-1", "student", "state.edu")
	profile.DisplayName = "Jo"
	profile.IsVerified = true
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	got, err := store.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Email != "user-1@state.edu" || got.Role != "student" || !got.IsVerified {
		t.Fatalf("unexpected profile %+v", got)
	}
	if got.DisplayName != "Jo" {
		t.Fatalf("expected display name preserved, got %q", got.DisplayName)
	}
	if !got.CreatedAt.Equal(profile.CreatedAt) {
		t.Fatalf("expected created at %v, got %v", profile.CreatedAt, got.CreatedAt)
	}
}

func TestPutProfileUpsertsExistingRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	profile := testProfile("user-1", "student", "state.edu")
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	profile.Role = "mentor"
	profile.IsVerified = true
	profile.UpdatedAt = profile.UpdatedAt.Add(time.Hour)
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	got, err := store.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Role != "mentor" || !got.IsVerified {
		t.Fatalf("expected updated row, got %+v", got)
	}
}

func TestGetProfileMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.GetProfile(context.Background(), "user-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListMentorsByDomainFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := store.PutProfile(ctx, testProfile(fmt.Sprintf("mentor-%d", i), "mentor", "state.edu")); err != nil {
			t.Fatalf("put mentor %d: %v", i, err)
		}
	}
	if err := store.PutProfile(ctx, testProfile("student-1", "student", "state.edu")); err != nil {
		t.Fatalf("put student: %v", err)
	}
	if err := store.PutProfile(ctx, testProfile("mentor-9", "mentor", "tech.edu")); err != nil {
		t.Fatalf("put foreign mentor: %v", err)
	}

	first, err := store.ListMentorsByDomain(ctx, "state.edu", 3, "")
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Profiles) != 3 || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first)
	}

	second, err := store.ListMentorsByDomain(ctx, "state.edu", 3, first.NextPageToken)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Profiles) != 1 || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}

	for _, profile := range append(first.Profiles, second.Profiles...) {
		if profile.Role != "mentor" || profile.CollegeDomain != "state.edu" {
			t.Fatalf("unexpected profile in listing %+v", profile)
		}
	}
}
