package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

func TestTeachingAssignmentRepositoryDeactivateThenUpsert(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewTeachingAssignmentRepository(db)
	assignment := &models.TeachingAssignment{
		TeacherID: "teacher-1", CourseID: "course-cs101", BranchID: "branch-cse",
		Semester: 1, AcademicYear: "2023-2024", Section: models.SectionA,
	}
	created := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_assignments SET active = FALSE")).
		WithArgs("course-cs101", "branch-cse", 1, "2023-2024", models.SectionA).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (teacher_id, course_id, branch_id, semester, academic_year)")).
		WithArgs(sqlmock.AnyArg(), "teacher-1", "course-cs101", "branch-cse", 1, "2023-2024", models.SectionA, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("assign-old", created))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.DeactivateCohortTx(context.Background(), tx, assignment))
	require.NoError(t, repo.UpsertTx(context.Background(), tx, assignment))
	require.NoError(t, tx.Commit())

	assert.Equal(t, "assign-old", assignment.ID)
	assert.True(t, assignment.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeachingAssignmentRepositoryListActiveByTeacher(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewTeachingAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ta.teacher_id = $1 AND ta.active = TRUE")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "course_id", "branch_id", "semester", "academic_year", "section", "active", "created_at", "course_code", "course_name", "branch_name"}).
			AddRow("assign-1", "teacher-1", "course-cs101", "branch-cse", 1, "2023-2024", "A", true, time.Now(), "CS101", "Programming", "CSE"))

	assignments, err := repo.ListActiveByTeacher(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Programming", assignments[0].CourseName)
	assert.Equal(t, models.RosterScope{CourseID: "course-cs101", Semester: 1, Section: models.SectionA, BranchID: "branch-cse"}, assignments[0].RosterScope())
	assert.NoError(t, mock.ExpectationsWereMet())
}
