// Package sqlite provides a SQLite-backed profiles storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/campuslink/campuslink/internal/platform/storage/sqlitemigrate"
	"github.com/campuslink/campuslink/internal/services/profiles/storage"
	"github.com/campuslink/campuslink/internal/services/profiles/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists profiles in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Open opens a SQLite profiles store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutProfile upserts one profile row keyed by user id.
func (s *Store) PutProfile(ctx context.Context, profile storage.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID := strings.TrimSpace(profile.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profiles (
		   user_id, email, college_domain, role, source,
		   is_verified, onboarding_complete, display_name,
		   last_active_at, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   email = excluded.email,
		   college_domain = excluded.college_domain,
		   role = excluded.role,
		   source = excluded.source,
		   is_verified = excluded.is_verified,
		   onboarding_complete = excluded.onboarding_complete,
		   display_name = excluded.display_name,
		   last_active_at = excluded.last_active_at,
		   updated_at = excluded.updated_at`,
		userID,
		profile.Email,
		profile.CollegeDomain,
		profile.Role,
		profile.Source,
		boolToInt(profile.IsVerified),
		boolToInt(profile.OnboardingComplete),
		profile.DisplayName,
		toMillis(profile.LastActiveAt),
		toMillis(profile.CreatedAt),
		toMillis(profile.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// GetProfile returns one profile by user id.
func (s *Store) GetProfile(ctx context.Context, userID string) (storage.Profile, error) {
	if err := ctx.Err(); err != nil {
		return storage.Profile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Profile{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.Profile{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, email, college_domain, role, source,
		        is_verified, onboarding_complete, display_name,
		        last_active_at, created_at, updated_at
		 FROM profiles
		 WHERE user_id = ?`,
		userID,
	)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, storage.ErrNotFound
		}
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// ListMentorsByDomain returns one page of mentor profiles in a college
// domain, keyed by user id for stable pagination.
func (s *Store) ListMentorsByDomain(ctx context.Context, collegeDomain string, pageSize int, pageToken string) (storage.ProfilePage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProfilePage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProfilePage{}, fmt.Errorf("storage is not configured")
	}
	collegeDomain = strings.TrimSpace(collegeDomain)
	if collegeDomain == "" {
		return storage.ProfilePage{}, fmt.Errorf("college domain is required")
	}
	if pageSize <= 0 {
		return storage.ProfilePage{}, fmt.Errorf("page size must be greater than zero")
	}

	page := storage.ProfilePage{
		Profiles: make([]storage.Profile, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	var (
		rows *sql.Rows
		err  error
	)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT user_id, email, college_domain, role, source,
			        is_verified, onboarding_complete, display_name,
			        last_active_at, created_at, updated_at
			 FROM profiles
			 WHERE college_domain = ? AND role = 'mentor'
			 ORDER BY user_id ASC
			 LIMIT ?`,
			collegeDomain,
			pageSize+1,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT user_id, email, college_domain, role, source,
			        is_verified, onboarding_complete, display_name,
			        last_active_at, created_at, updated_at
			 FROM profiles
			 WHERE college_domain = ? AND role = 'mentor' AND user_id > ?
			 ORDER BY user_id ASC
			 LIMIT ?`,
			collegeDomain,
			pageToken,
			pageSize+1,
		)
	}
	if err != nil {
		return storage.ProfilePage{}, fmt.Errorf("list mentors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return storage.ProfilePage{}, fmt.Errorf("list mentors: %w", err)
		}
		page.Profiles = append(page.Profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return storage.ProfilePage{}, fmt.Errorf("list mentors: %w", err)
	}
	if len(page.Profiles) > pageSize {
		page.NextPageToken = page.Profiles[pageSize-1].UserID
		page.Profiles = page.Profiles[:pageSize]
	}

	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (storage.Profile, error) {
	var (
		profile            storage.Profile
		isVerified         int
		onboardingComplete int
		lastActiveAt       int64
		createdAt          int64
		updatedAt          int64
	)
	err := row.Scan(
		&profile.UserID,
		&profile.Email,
		&profile.CollegeDomain,
		&profile.Role,
		&profile.Source,
		&isVerified,
		&onboardingComplete,
		&profile.DisplayName,
		&lastActiveAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return storage.Profile{}, err
	}
	profile.IsVerified = isVerified != 0
	profile.OnboardingComplete = onboardingComplete != 0
	profile.LastActiveAt = fromMillis(lastActiveAt)
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

var _ storage.ProfileStore = (*Store)(nil)
