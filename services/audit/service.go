package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pollenlabs/nectar-gateway/models"
	"go.uber.org/zap"
)

// Decision is one resolved authentication verdict worth keeping for
// operability. No raw credential material is ever stored.
type Decision struct {
	ID            uuid.UUID
	Key           string
	Path          string
	Method        models.AuthMethod
	Tier          models.Tier
	UserID        string
	Authenticated bool
	CreatedAt     time.Time
}

// Service writes authentication decisions to PostgreSQL. Recording is
// best-effort: when no database is configured every call is a no-op, and a
// failed insert is logged but never fails the request it describes.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService creates a new audit Service. db may be nil to disable auditing.
func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Enabled reports whether decisions are actually persisted
func (s *Service) Enabled() bool {
	return s.db != nil
}

// InitSchema creates the decision table when auditing is enabled
func (s *Service) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	query := `
		CREATE TABLE IF NOT EXISTS auth_decisions (
			id UUID PRIMARY KEY,
			queue_key TEXT NOT NULL,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			tier TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			authenticated BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create auth_decisions table: %w", err)
	}
	return nil
}

// Record inserts one decision
func (s *Service) Record(ctx context.Context, d Decision) error {
	if s.db == nil {
		return nil
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO auth_decisions (id, queue_key, path, method, tier, user_id, authenticated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Key, d.Path, string(d.Method), d.Tier.String(), d.UserID, d.Authenticated, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert auth decision: %w", err)
	}
	return nil
}

// RecordAsync records a decision without blocking the request path
func (s *Service) RecordAsync(d Decision) {
	if s.db == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := s.Record(ctx, d); err != nil {
			s.logger.Warn("failed to record auth decision", zap.Error(err))
		}
	}()
}

// CleanupOld removes decisions older than the retention window to keep the
// table size manageable
func (s *Service) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM auth_decisions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup auth decisions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		s.logger.Info("cleaned up old auth decisions",
			zap.Int64("rows_deleted", rows),
			zap.Time("cutoff", cutoff))
	}
	return rows, nil
}

// StartCleanupWorker periodically prunes old decisions. Returns when ctx is
// cancelled.
func (s *Service) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	if s.db == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOld(ctx, retention); err != nil {
				s.logger.Error("audit cleanup failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
