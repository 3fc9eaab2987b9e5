package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

// fakeEnrollmentWriter keeps stored sections keyed by student and course so that
// reactivation with keepSection mirrors the repository upsert.
type fakeEnrollmentWriter struct {
	upserted []models.Enrollment
	stored   map[string]models.Section
	failOn   int
	err      error
}

func (m *fakeEnrollmentWriter) UpsertActive(ctx context.Context, enrollment *models.Enrollment, keepSection bool) error {
	return m.UpsertActiveTx(ctx, nil, enrollment, keepSection)
}

func (m *fakeEnrollmentWriter) UpsertActiveTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, keepSection bool) error {
	if m.err != nil && len(m.upserted)+1 >= m.failOn {
		return m.err
	}
	if m.stored == nil {
		m.stored = map[string]models.Section{}
	}
	enrollment.ID = "enr-" + enrollment.StudentID + "-" + enrollment.CourseID
	if section, ok := m.stored[enrollment.ID]; ok && keepSection {
		enrollment.Section = section
	}
	m.stored[enrollment.ID] = enrollment.Section
	enrollment.Active = true
	m.upserted = append(m.upserted, *enrollment)
	return nil
}

type fakeEnrollmentStudents struct {
	items map[string]models.Student
}

func (m *fakeEnrollmentStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m *fakeEnrollmentStudents) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeEnrollmentCourses struct {
	items map[string]models.Course
}

func (m *fakeEnrollmentCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m *fakeEnrollmentCourses) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	var out []models.Course
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

type enrollmentFixture struct {
	svc   *EnrollmentService
	repo  *fakeEnrollmentWriter
	cache *fakeCacheDeleter
}

func newEnrollmentFixture(t *testing.T, tx txProvider) *enrollmentFixture {
	t.Helper()
	f := &enrollmentFixture{repo: &fakeEnrollmentWriter{}, cache: &fakeCacheDeleter{}}
	students := &fakeEnrollmentStudents{items: map[string]models.Student{
		"stu-1": {ID: "stu-1", Section: models.SectionA},
		"stu-2": {ID: "stu-2", Section: models.Section("B")},
		"stu-3": {ID: "stu-3", Section: models.Section("NONE")},
	}}
	courses := &fakeEnrollmentCourses{items: map[string]models.Course{
		"course-cs101": {ID: "course-cs101", Code: "CS101"},
		"course-ma101": {ID: "course-ma101", Code: "MA101"},
	}}
	f.svc = NewEnrollmentService(f.repo, students, courses, tx, f.cache, nil, nil)
	return f
}

func TestEnrollmentServiceEnrollUsesStudentSection(t *testing.T) {
	f := newEnrollmentFixture(t, nil)

	enrollment, err := f.svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-2", CourseID: "course-cs101", Semester: 1, AcademicYear: " 2023-2024 ",
	})
	require.NoError(t, err)
	assert.True(t, enrollment.Active)
	assert.Equal(t, models.Section("B"), enrollment.Section)
	assert.Equal(t, "2023-2024", enrollment.AcademicYear)
	assert.Equal(t, []string{"attendance:overview:stu-2"}, f.cache.deleted())

	enrollment, err = f.svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-3", CourseID: "course-cs101", Semester: 1, AcademicYear: "2023-2024",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SectionA, enrollment.Section)

	enrollment, err = f.svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-2", CourseID: "course-ma101", Semester: 1, AcademicYear: "2023-2024", Section: "C",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Section("C"), enrollment.Section)
}

func TestEnrollmentServiceEnrollRejectsUnknownReferences(t *testing.T) {
	f := newEnrollmentFixture(t, nil)

	_, err := f.svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "ghost", CourseID: "course-cs101", Semester: 1, AcademicYear: "2023-2024"})
	requireAppError(t, err, http.StatusBadRequest)
	_, err = f.svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "stu-1", CourseID: "ghost", Semester: 1, AcademicYear: "2023-2024"})
	requireAppError(t, err, http.StatusBadRequest)
	_, err = f.svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "stu-1", CourseID: "course-cs101", Semester: 1, AcademicYear: "2023-2024", Section: "NONE"})
	requireAppError(t, err, http.StatusBadRequest)
	assert.Empty(t, f.repo.upserted)
}

func TestEnrollmentServiceBatchEnrollCrossProduct(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newEnrollmentFixture(t, tx)

	enrollments, err := f.svc.BatchEnroll(context.Background(), BatchEnrollRequest{
		StudentIDs:   []string{"stu-1", "stu-2", "stu-1"},
		CourseIDs:    []string{"course-cs101", "course-ma101"},
		Semester:     1,
		AcademicYear: "2023-2024",
	})
	require.NoError(t, err)
	require.Len(t, enrollments, 4)
	assert.Equal(t, "stu-1", enrollments[0].StudentID)
	assert.Equal(t, "course-ma101", enrollments[1].CourseID)
	assert.Equal(t, models.Section("B"), enrollments[2].Section)
	assert.Equal(t, []string{"attendance:overview:stu-1", "attendance:overview:stu-2"}, f.cache.deleted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceBatchEnrollRejectsMissingIDs(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newEnrollmentFixture(t, tx)

	_, err := f.svc.BatchEnroll(context.Background(), BatchEnrollRequest{
		StudentIDs: []string{"stu-1", "ghost"}, CourseIDs: []string{"course-cs101"}, Semester: 1, AcademicYear: "2023-2024",
	})
	requireAppError(t, err, http.StatusBadRequest)
	assert.Contains(t, err.Error(), "ghost")

	_, err = f.svc.BatchEnroll(context.Background(), BatchEnrollRequest{
		StudentIDs: []string{"stu-1"}, CourseIDs: []string{"nope"}, Semester: 1, AcademicYear: "2023-2024",
	})
	requireAppError(t, err, http.StatusBadRequest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceBatchEnrollRollsBack(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newEnrollmentFixture(t, tx)
	f.repo.err = errors.New("insert failed")
	f.repo.failOn = 2

	_, err := f.svc.BatchEnroll(context.Background(), BatchEnrollRequest{
		StudentIDs: []string{"stu-1", "stu-2"}, CourseIDs: []string{"course-cs101"}, Semester: 1, AcademicYear: "2023-2024",
	})
	requireAppError(t, err, http.StatusInternalServerError)
	assert.Empty(t, f.cache.deleted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceReenrollKeepsSectionUnlessRequested(t *testing.T) {
	f := newEnrollmentFixture(t, nil)

	enrollment, err := f.svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-2", CourseID: "course-cs101", Semester: 1, AcademicYear: "2023-2024", Section: "D",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Section("D"), enrollment.Section)

	enrollment, err = f.svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-2", CourseID: "course-cs101", Semester: 1, AcademicYear: "2023-2024",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Section("D"), enrollment.Section)

	enrollment, err = f.svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-2", CourseID: "course-cs101", Semester: 1, AcademicYear: "2023-2024", Section: "C",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Section("C"), enrollment.Section)
}
