package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func requireAppError(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, status, appErr.Status, appErr.Error())
}

func teacherActor() models.Actor {
	return models.Actor{UserID: "user-t1", Role: models.RoleTeacher, TeacherID: "teacher-1"}
}

func studentActor(id string) models.Actor {
	return models.Actor{UserID: "user-" + id, Role: models.RoleStudent, StudentID: id}
}

func cohortAssignment() models.TeachingAssignment {
	return models.TeachingAssignment{
		ID:           "assign-1",
		TeacherID:    "teacher-1",
		CourseID:     "course-cs101",
		BranchID:     "branch-cse",
		Semester:     1,
		AcademicYear: "2023-2024",
		Section:      models.SectionA,
		Active:       true,
	}
}

type fakeAssignments struct {
	items map[string]models.TeachingAssignment
	err   error
}

func newFakeAssignments(items ...models.TeachingAssignment) *fakeAssignments {
	m := &fakeAssignments{items: map[string]models.TeachingAssignment{}}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

func (m *fakeAssignments) FindByID(ctx context.Context, id string) (*models.TeachingAssignment, error) {
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

type fakeCacheDeleter struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *fakeCacheDeleter) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, keys...)
	return m.err
}

func (m *fakeCacheDeleter) deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.keys...)
	sort.Strings(out)
	return out
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", raw)
	require.NoError(t, err)
	return d
}
