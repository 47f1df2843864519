// Package sqlite provides a SQLite-backed mentorship storage implementation.
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
	"github.com/campuslink/campuslink/internal/services/mentorship/storage"
	"github.com/campuslink/campuslink/internal/services/mentorship/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists mentorship requests in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// pairKey builds the unordered party pair identifier backing the
// one-active-request-per-pair unique index.
func pairKey(requesterID, mentorID string) string {
	if requesterID < mentorID {
		return requesterID + "|" + mentorID
	}
	return mentorID + "|" + requesterID
}

// Open opens a SQLite mentorship store and applies embedded migrations.
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

// CreateRequest inserts one mentorship request. A pending or accepted request
// already covering the same party pair maps to ErrDuplicateActive.
func (s *Store) CreateRequest(ctx context.Context, request storage.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(request.ID)
	requesterID := strings.TrimSpace(request.RequesterID)
	mentorID := strings.TrimSpace(request.MentorID)
	if id == "" {
		return fmt.Errorf("request id is required")
	}
	if requesterID == "" {
		return fmt.Errorf("requester id is required")
	}
	if mentorID == "" {
		return fmt.Errorf("mentor id is required")
	}
	if strings.TrimSpace(request.Status) == "" {
		return fmt.Errorf("status is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO mentorship_requests (
		   id, requester_id, mentor_id, pair_key, status,
		   suggested_mentor_id, requester_feedback, mentor_feedback,
		   created_at, updated_at, responded_at, completed_at, cancelled_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		requesterID,
		mentorID,
		pairKey(requesterID, mentorID),
		request.Status,
		request.SuggestedMentorID,
		request.RequesterFeedback,
		request.MentorFeedback,
		toMillis(request.CreatedAt),
		toMillis(request.UpdatedAt),
		toNullMillis(request.RespondedAt),
		toNullMillis(request.CompletedAt),
		toNullMillis(request.CancelledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateActive
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetRequest returns one mentorship request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (storage.Request, error) {
	if err := ctx.Err(); err != nil {
		return storage.Request{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Request{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Request{}, fmt.Errorf("request id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, requester_id, mentor_id, status,
		        suggested_mentor_id, requester_feedback, mentor_feedback,
		        created_at, updated_at, responded_at, completed_at, cancelled_at
		 FROM mentorship_requests
		 WHERE id = ?`,
		id,
	)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Request{}, storage.ErrNotFound
		}
		return storage.Request{}, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

// UpdateRequest rewrites the mutable columns of one request, applying only if
// the stored status still equals expectedStatus.
func (s *Store) UpdateRequest(ctx context.Context, request storage.Request, expectedStatus string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(request.ID)
	if id == "" {
		return fmt.Errorf("request id is required")
	}
	if strings.TrimSpace(request.Status) == "" {
		return fmt.Errorf("status is required")
	}
	if strings.TrimSpace(expectedStatus) == "" {
		return fmt.Errorf("expected status is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE mentorship_requests SET
		   status = ?,
		   suggested_mentor_id = ?,
		   requester_feedback = ?,
		   mentor_feedback = ?,
		   updated_at = ?,
		   responded_at = ?,
		   completed_at = ?,
		   cancelled_at = ?
		 WHERE id = ? AND status = ?`,
		request.Status,
		request.SuggestedMentorID,
		request.RequesterFeedback,
		request.MentorFeedback,
		toMillis(request.UpdatedAt),
		toNullMillis(request.RespondedAt),
		toNullMillis(request.CompletedAt),
		toNullMillis(request.CancelledAt),
		id,
		expectedStatus,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateActive
		}
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetRequest(ctx, id); errors.Is(getErr, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrStatusConflict
	}
	return nil
}

// ListRequestsForUser returns one page of requests where userID is either
// party, keyed by id for stable pagination.
func (s *Store) ListRequestsForUser(ctx context.Context, userID string, pageSize int, pageToken string) (storage.RequestPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.RequestPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RequestPage{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.RequestPage{}, fmt.Errorf("user id is required")
	}
	if pageSize <= 0 {
		return storage.RequestPage{}, fmt.Errorf("page size must be greater than zero")
	}

	page := storage.RequestPage{
		Requests: make([]storage.Request, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	var (
		rows *sql.Rows
		err  error
	)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, requester_id, mentor_id, status,
			        suggested_mentor_id, requester_feedback, mentor_feedback,
			        created_at, updated_at, responded_at, completed_at, cancelled_at
			 FROM mentorship_requests
			 WHERE requester_id = ? OR mentor_id = ?
			 ORDER BY id DESC
			 LIMIT ?`,
			userID,
			userID,
			pageSize+1,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, requester_id, mentor_id, status,
			        suggested_mentor_id, requester_feedback, mentor_feedback,
			        created_at, updated_at, responded_at, completed_at, cancelled_at
			 FROM mentorship_requests
			 WHERE (requester_id = ? OR mentor_id = ?) AND id < ?
			 ORDER BY id DESC
			 LIMIT ?`,
			userID,
			userID,
			pageToken,
			pageSize+1,
		)
	}
	if err != nil {
		return storage.RequestPage{}, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return storage.RequestPage{}, fmt.Errorf("list requests: %w", err)
		}
		page.Requests = append(page.Requests, request)
	}
	if err := rows.Err(); err != nil {
		return storage.RequestPage{}, fmt.Errorf("list requests: %w", err)
	}
	if len(page.Requests) > pageSize {
		page.NextPageToken = page.Requests[pageSize-1].ID
		page.Requests = page.Requests[:pageSize]
	}

	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (storage.Request, error) {
	var (
		request     storage.Request
		createdAt   int64
		updatedAt   int64
		respondedAt sql.NullInt64
		completedAt sql.NullInt64
		cancelledAt sql.NullInt64
	)
	err := row.Scan(
		&request.ID,
		&request.RequesterID,
		&request.MentorID,
		&request.Status,
		&request.SuggestedMentorID,
		&request.RequesterFeedback,
		&request.MentorFeedback,
		&createdAt,
		&updatedAt,
		&respondedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return storage.Request{}, err
	}
	request.CreatedAt = fromMillis(createdAt)
	request.UpdatedAt = fromMillis(updatedAt)
	request.RespondedAt = fromNullMillis(respondedAt)
	request.CompletedAt = fromNullMillis(completedAt)
	request.CancelledAt = fromNullMillis(cancelledAt)
	return request, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.RequestStore = (*Store)(nil)
