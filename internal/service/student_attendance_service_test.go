package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

type fakeStudentEnrollments struct {
	byStudent map[string][]models.EnrollmentDetail
	byID      map[string]models.EnrollmentDetail
}

func (m *fakeStudentEnrollments) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.byStudent[studentID], nil
}

func (m *fakeStudentEnrollments) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	item, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

type fakeStudentAttendance struct {
	counts     map[string][]models.EnrollmentAttendanceCount
	history    map[string][]models.CourseAttendanceEntry
	countCalls int
	err        error
}

func (m *fakeStudentAttendance) CountsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentAttendanceCount, error) {
	m.countCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.counts[studentID], nil
}

func (m *fakeStudentAttendance) HistoryByEnrollment(ctx context.Context, enrollmentID string) ([]models.CourseAttendanceEntry, error) {
	return m.history[enrollmentID], nil
}

type fakeOverviewCache struct {
	entries map[string]models.AttendanceOverview
	ttls    map[string]time.Duration
	getErr  error
}

func newFakeOverviewCache() *fakeOverviewCache {
	return &fakeOverviewCache{entries: map[string]models.AttendanceOverview{}, ttls: map[string]time.Duration{}}
}

func (m *fakeOverviewCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*models.AttendanceOverview)) = entry
	return true, nil
}

func (m *fakeOverviewCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.entries[key] = *(value.(*models.AttendanceOverview))
	m.ttls[key] = ttl
	return nil
}

func TestStudentAttendanceServiceOverview(t *testing.T) {
	attendance := &fakeStudentAttendance{counts: map[string][]models.EnrollmentAttendanceCount{
		"stu-1": {
			{EnrollmentID: "enr-1", CourseCode: "CS101", CourseName: "Programming", TotalSessions: 8, AttendedSessions: 7},
			{EnrollmentID: "enr-2", CourseCode: "MA101", CourseName: "Calculus", TotalSessions: 8, AttendedSessions: 5},
			{EnrollmentID: "enr-3", CourseCode: "PH101", CourseName: "Physics", TotalSessions: 0, AttendedSessions: 0},
		},
	}}
	cache := newFakeOverviewCache()
	svc := NewStudentAttendanceService(&fakeStudentEnrollments{}, attendance, cache, nil, StudentAttendanceConfig{CacheTTL: time.Minute})

	overview, err := svc.Overview(context.Background(), studentActor("stu-1"))
	require.NoError(t, err)
	require.Len(t, overview.Courses, 3)

	assert.Equal(t, 88, overview.Courses[0].Percentage)
	assert.Equal(t, models.StatusGood, overview.Courses[0].Status)
	assert.Equal(t, 63, overview.Courses[1].Percentage)
	assert.Equal(t, models.StatusWarning, overview.Courses[1].Status)
	assert.Equal(t, 0, overview.Courses[2].Percentage)
	assert.Equal(t, models.StatusCritical, overview.Courses[2].Status)

	assert.Equal(t, 16, overview.TotalSessions)
	assert.Equal(t, 12, overview.AttendedSessions)
	assert.Equal(t, 75, overview.Percentage)
	assert.Equal(t, models.StatusGood, overview.Status)
	assert.Equal(t, time.Minute, cache.ttls["attendance:overview:stu-1"])

	_, err = svc.Overview(context.Background(), studentActor("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, attendance.countCalls)
}

func TestStudentAttendanceServiceOverviewCustomThresholds(t *testing.T) {
	attendance := &fakeStudentAttendance{counts: map[string][]models.EnrollmentAttendanceCount{
		"stu-1": {{EnrollmentID: "enr-1", TotalSessions: 10, AttendedSessions: 8}},
	}}
	svc := NewStudentAttendanceService(&fakeStudentEnrollments{}, attendance, nil, nil, StudentAttendanceConfig{
		Thresholds: models.StatusThresholds{Good: 85, Warning: 70},
	})

	overview, err := svc.Overview(context.Background(), studentActor("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarning, overview.Status)
	assert.NotNil(t, overview.Courses)
}

func TestStudentAttendanceServiceOverviewFallsBackOnCacheError(t *testing.T) {
	attendance := &fakeStudentAttendance{}
	cache := newFakeOverviewCache()
	cache.getErr = errors.New("redis down")
	svc := NewStudentAttendanceService(&fakeStudentEnrollments{}, attendance, cache, nil, StudentAttendanceConfig{})

	overview, err := svc.Overview(context.Background(), studentActor("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCritical, overview.Status)
	assert.Empty(t, overview.Courses)
	assert.Equal(t, 1, attendance.countCalls)
}

func TestStudentAttendanceServiceRequiresStudentProfile(t *testing.T) {
	svc := NewStudentAttendanceService(&fakeStudentEnrollments{}, &fakeStudentAttendance{}, nil, nil, StudentAttendanceConfig{})

	_, err := svc.Overview(context.Background(), teacherActor())
	requireAppError(t, err, http.StatusForbidden)
	_, err = svc.Enrollments(context.Background(), teacherActor())
	requireAppError(t, err, http.StatusForbidden)
	_, err = svc.CourseAttendance(context.Background(), teacherActor(), "enr-1")
	requireAppError(t, err, http.StatusForbidden)
}

func TestStudentAttendanceServiceCourseAttendance(t *testing.T) {
	enrollments := &fakeStudentEnrollments{byID: map[string]models.EnrollmentDetail{
		"enr-1": {Enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1"}, CourseCode: "CS101", CourseName: "Programming"},
		"enr-2": {Enrollment: models.Enrollment{ID: "enr-2", StudentID: "stu-2"}, CourseCode: "CS101", CourseName: "Programming"},
	}}
	attendance := &fakeStudentAttendance{history: map[string][]models.CourseAttendanceEntry{
		"enr-1": {
			{SessionID: "s3", Present: true},
			{SessionID: "s2", Present: false},
			{SessionID: "s1", Present: true},
		},
	}}
	svc := NewStudentAttendanceService(enrollments, attendance, nil, nil, StudentAttendanceConfig{})

	course, err := svc.CourseAttendance(context.Background(), studentActor("stu-1"), "enr-1")
	require.NoError(t, err)
	assert.Len(t, course.Entries, 3)
	assert.Equal(t, "CS101", course.Summary.CourseCode)
	assert.Equal(t, 2, course.Summary.AttendedSessions)
	assert.Equal(t, 67, course.Summary.Percentage)
	assert.Equal(t, models.StatusWarning, course.Summary.Status)

	_, err = svc.CourseAttendance(context.Background(), studentActor("stu-1"), "enr-2")
	requireAppError(t, err, http.StatusForbidden)

	_, err = svc.CourseAttendance(context.Background(), studentActor("stu-1"), "enr-missing")
	requireAppError(t, err, http.StatusNotFound)
}

func TestStudentAttendanceServiceEnrollmentsEmpty(t *testing.T) {
	svc := NewStudentAttendanceService(&fakeStudentEnrollments{}, &fakeStudentAttendance{}, nil, nil, StudentAttendanceConfig{})

	enrollments, err := svc.Enrollments(context.Background(), studentActor("stu-1"))
	require.NoError(t, err)
	assert.NotNil(t, enrollments)
	assert.Empty(t, enrollments)
}
