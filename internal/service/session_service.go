package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type sessionStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SessionSummary, error)
}

type rosterReader interface {
	ListActiveByScopeTx(ctx context.Context, tx *sqlx.Tx, scope models.RosterScope) ([]models.RosterEntry, error)
}

type rosterWriter interface {
	BulkCreateTx(ctx context.Context, tx *sqlx.Tx, rows []models.Attendance) error
}

// CreateSessionRequest is the payload for opening a class session.
type CreateSessionRequest struct {
	AssignmentID string  `json:"assignment_id" validate:"required"`
	Date         string  `json:"date" validate:"required"`
	Topic        *string `json:"topic" validate:"omitempty,max=255"`
}

// CreatedSession is a new session together with the size of its roster snapshot.
type CreatedSession struct {
	models.Session
	RosterSize int `json:"roster_size"`
}

// SessionService opens sessions and snapshots their attendance roster.
type SessionService struct {
	sessions    sessionStore
	assignments assignmentReader
	roster      rosterReader
	attendance  rosterWriter
	tx          txProvider
	cache       cacheKeyDeleter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionService wires session dependencies.
func NewSessionService(
	sessions sessionStore,
	assignments assignmentReader,
	roster rosterReader,
	attendance rosterWriter,
	tx txProvider,
	cache cacheKeyDeleter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:    sessions,
		assignments: assignments,
		roster:      roster,
		attendance:  attendance,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a session for an owned assignment and inserts one absent attendance row per
// eligible enrollment. The session and its roster commit together or not at all.
func (s *SessionService) Create(ctx context.Context, actor models.Actor, req CreateSessionRequest) (*CreatedSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	date, err := parseSessionDate(req.Date)
	if err != nil {
		return nil, err
	}
	assignment, err := ownedAssignment(ctx, s.assignments, actor, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session := &models.Session{
		AssignmentID: assignment.ID,
		Date:         date,
		Topic:        normalizeTopic(req.Topic),
	}
	if err = s.sessions.CreateTx(ctx, tx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	var entries []models.RosterEntry
	entries, err = s.roster.ListActiveByScopeTx(ctx, tx, assignment.RosterScope())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session roster")
	}

	markedAt := s.now()
	rows := make([]models.Attendance, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, models.Attendance{
			SessionID:    session.ID,
			StudentID:    entry.StudentID,
			EnrollmentID: entry.EnrollmentID,
			Present:      false,
			MarkedBy:     actor.UserID,
			MarkedAt:     markedAt,
		})
	}
	if len(rows) > 0 {
		if err = s.attendance.BulkCreateTx(ctx, tx, rows); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session roster")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session")
	}

	s.metrics.ObserveRoster(len(rows))
	s.invalidateOverviews(ctx, entries)
	s.logger.Info("session roster created",
		zap.String("session_id", session.ID),
		zap.String("assignment_id", assignment.ID),
		zap.Int("roster_size", len(rows)),
	)

	return &CreatedSession{Session: *session, RosterSize: len(rows)}, nil
}

// ListByAssignment returns an owned assignment's sessions newest first.
func (s *SessionService) ListByAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.SessionSummary, error) {
	if _, err := ownedAssignment(ctx, s.assignments, actor, assignmentID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	return sessions, nil
}

func (s *SessionService) invalidateOverviews(ctx context.Context, entries []models.RosterEntry) {
	if s.cache == nil || len(entries) == 0 {
		return
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, overviewCacheKey(entry.StudentID))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate overview cache", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

func parseSessionDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD or RFC3339")
}

func normalizeTopic(topic *string) *string {
	if topic == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*topic)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
