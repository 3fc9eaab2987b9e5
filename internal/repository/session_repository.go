package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

// SessionRepository persists class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateTx inserts a session inside tx.
func (r *SessionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.Session) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, assignment_id, date, topic, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, query, session.ID, session.AssignmentID, session.Date, session.Topic, session.CreatedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID fetches a session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, assignment_id, date, topic, created_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// ListByAssignment returns the assignment's sessions newest first with attendance tallies.
func (r *SessionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SessionSummary, error) {
	const query = `SELECT se.id, se.assignment_id, se.date, se.topic, se.created_at,
COALESCE(SUM(CASE WHEN a.present THEN 1 ELSE 0 END), 0) AS present_count,
COUNT(a.id) AS total_count
FROM sessions se
LEFT JOIN attendance a ON a.session_id = se.id
WHERE se.assignment_id = $1
GROUP BY se.id
ORDER BY se.date DESC, se.created_at DESC`
	var sessions []models.SessionSummary
	if err := r.db.SelectContext(ctx, &sessions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
