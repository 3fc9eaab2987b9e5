package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.TeachingAssignment, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type cacheKeyDeleter interface {
	Delete(ctx context.Context, keys ...string) error
}

const overviewCachePrefix = "attendance:overview:"

// OverviewCachePattern matches every cached student overview.
const OverviewCachePattern = overviewCachePrefix + "*"

func overviewCacheKey(studentID string) string {
	return overviewCachePrefix + studentID
}

func requireTeacher(actor models.Actor) error {
	if actor.TeacherID == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "teacher profile required")
	}
	return nil
}

func requireStudent(actor models.Actor) error {
	if actor.StudentID == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "student profile required")
	}
	return nil
}

// ownedAssignment loads an assignment and checks it is active and taught by actor.
// A missing assignment is reported as forbidden so ids cannot be probed.
func ownedAssignment(ctx context.Context, repo assignmentReader, actor models.Actor, assignmentID string) (*models.TeachingAssignment, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	assignment, err := repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized for this assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching assignment")
	}
	if assignment.TeacherID != actor.TeacherID || !assignment.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized for this assignment")
	}
	return assignment, nil
}

// ownedSession resolves a session (404 when missing) and then the ownership of its assignment.
func ownedSession(ctx context.Context, sessions sessionReader, assignments assignmentReader, actor models.Actor, sessionID string) (*models.Session, *models.TeachingAssignment, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, nil, err
	}
	if sessionID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	session, err := sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	assignment, err := ownedAssignment(ctx, assignments, actor, session.AssignmentID)
	if err != nil {
		return nil, nil, err
	}
	return session, assignment, nil
}
