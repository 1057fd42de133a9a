package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivion/rivion/internal/database"
)

// SessionRepository provides PostgreSQL-backed analysis session storage.
type SessionRepository struct {
	pool *Pool
}

func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Save stores an analysis session.
func (r *SessionRepository) Save(ctx context.Context, s *database.AnalysisSession) error {
	query := `
		INSERT INTO analysis_sessions
			(id, user_name, dominant_emotion, confidence, statement, image_path, match_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			dominant_emotion = EXCLUDED.dominant_emotion,
			confidence = EXCLUDED.confidence,
			statement = EXCLUDED.statement,
			image_path = EXCLUDED.image_path,
			match_count = EXCLUDED.match_count,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserName,
		s.DominantEmotion,
		s.Confidence,
		s.Statement,
		s.ImagePath,
		s.MatchCount,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (r *SessionRepository) Get(ctx context.Context, id string) (*database.AnalysisSession, error) {
	query := `
		SELECT id, user_name, dominant_emotion, confidence, statement, image_path, match_count, created_at, expires_at
		FROM analysis_sessions
		WHERE id = $1 AND expires_at > NOW()
	`

	var s database.AnalysisSession
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserName,
		&s.DominantEmotion,
		&s.Confidence,
		&s.Statement,
		&s.ImagePath,
		&s.MatchCount,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &s, nil
}

// DeleteExpired removes all expired sessions and returns the count deleted.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM analysis_sessions WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted sessions: %w", err)
	}
	return deleted, nil
}
