package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

type fakeEnrollmentMatcher struct {
	mu          sync.Mutex
	enrollments map[string]models.Enrollment
	errs        map[string]error
	scopes      []models.RosterScope
}

func (m *fakeEnrollmentMatcher) enroll(studentID, enrollmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollments == nil {
		m.enrollments = map[string]models.Enrollment{}
	}
	m.enrollments[studentID] = models.Enrollment{ID: enrollmentID, StudentID: studentID, Active: true}
}

func (m *fakeEnrollmentMatcher) FindActiveForStudent(ctx context.Context, studentID string, scope models.RosterScope) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = append(m.scopes, scope)
	if err, ok := m.errs[studentID]; ok {
		return nil, err
	}
	enrollment, ok := m.enrollments[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

// fakeAttendanceStore mirrors the (session_id, student_id) upsert: an existing row keeps
// its id and enrollment_id.
type fakeAttendanceStore struct {
	mu           sync.Mutex
	rows         map[string]models.Attendance
	upsertErrs   map[string]error
	upsertDelay  func(studentID string) time.Duration
	upserts      int
	sessionStats []models.SessionStat
	studentStats []models.StudentStat
	seq          int
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{rows: map[string]models.Attendance{}}
}

func attendanceKey(sessionID, studentID string) string {
	return sessionID + "|" + studentID
}

func (m *fakeAttendanceStore) seed(row models.Attendance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[attendanceKey(row.SessionID, row.StudentID)] = row
}

func (m *fakeAttendanceStore) row(sessionID, studentID string) (models.Attendance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[attendanceKey(sessionID, studentID)]
	return row, ok
}

func (m *fakeAttendanceStore) Upsert(ctx context.Context, record *models.Attendance) (*models.Attendance, error) {
	if m.upsertDelay != nil {
		time.Sleep(m.upsertDelay(record.StudentID))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if err, ok := m.upsertErrs[record.StudentID]; ok {
		return nil, err
	}
	key := attendanceKey(record.SessionID, record.StudentID)
	stored, ok := m.rows[key]
	if ok {
		stored.Present = record.Present
		stored.MarkedBy = record.MarkedBy
		stored.MarkedAt = record.MarkedAt
	} else {
		m.seq++
		stored = *record
		stored.ID = fmt.Sprintf("att-%d", m.seq)
	}
	m.rows[key] = stored
	return &stored, nil
}

func (m *fakeAttendanceStore) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			return &row, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *fakeAttendanceStore) UpdatePresence(ctx context.Context, id string, present bool, markedBy string, markedAt time.Time) (*models.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, row := range m.rows {
		if row.ID == id {
			row.Present = present
			row.MarkedBy = markedBy
			row.MarkedAt = markedAt
			m.rows[key] = row
			return &row, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *fakeAttendanceStore) ListBySession(ctx context.Context, sessionID string) ([]models.SessionAttendanceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.SessionAttendanceRow
	for _, row := range m.rows {
		if row.SessionID == sessionID {
			rows = append(rows, models.SessionAttendanceRow{Attendance: row, RollNumber: "R-" + row.StudentID, FirstName: "Student", LastName: row.StudentID})
		}
	}
	return rows, nil
}

func (m *fakeAttendanceStore) SessionStatsByAssignment(ctx context.Context, assignmentID string) ([]models.SessionStat, error) {
	return m.sessionStats, nil
}

func (m *fakeAttendanceStore) StudentStatsByAssignment(ctx context.Context, assignmentID string) ([]models.StudentStat, error) {
	return m.studentStats, nil
}

type fakeRollNumbers struct {
	students []models.Student
}

func (m *fakeRollNumbers) FindByRollNumbers(ctx context.Context, rollNumbers []string) ([]models.Student, error) {
	wanted := map[string]bool{}
	for _, roll := range rollNumbers {
		wanted[roll] = true
	}
	var out []models.Student
	for _, student := range m.students {
		if wanted[student.RollNumber] {
			out = append(out, student)
		}
	}
	return out, nil
}

type attendanceFixture struct {
	service     *AttendanceService
	enrollments *fakeEnrollmentMatcher
	store       *fakeAttendanceStore
	students    *fakeRollNumbers
	cache       *fakeCacheDeleter
	metrics     *MetricsService
}

func newAttendanceFixture(t *testing.T, concurrency int) *attendanceFixture {
	t.Helper()
	foreign := cohortAssignment()
	foreign.ID = "assign-foreign"
	foreign.TeacherID = "teacher-2"

	sessions := newFakeSessionStore(
		models.Session{ID: "session-s", AssignmentID: "assign-1", Date: mustDate(t, "2024-01-10")},
		models.Session{ID: "session-foreign", AssignmentID: "assign-foreign", Date: mustDate(t, "2024-01-10")},
	)
	f := &attendanceFixture{
		enrollments: &fakeEnrollmentMatcher{},
		store:       newFakeAttendanceStore(),
		students:    &fakeRollNumbers{},
		cache:       &fakeCacheDeleter{},
		metrics:     NewMetricsService(),
	}
	f.service = NewAttendanceService(sessions, newFakeAssignments(cohortAssignment(), foreign), f.enrollments, f.store, f.students,
		nil, f.cache, f.metrics, nil, zap.NewNop(), AttendanceServiceConfig{Concurrency: concurrency})
	return f
}

// seedRoster enrolls students and creates their absent rows as a roster snapshot would.
func (f *attendanceFixture) seedRoster(studentIDs ...string) {
	for i, id := range studentIDs {
		f.enrollments.enroll(id, "enr-"+id)
		f.store.seed(models.Attendance{
			ID:           fmt.Sprintf("roster-%d", i+1),
			SessionID:    "session-s",
			StudentID:    id,
			EnrollmentID: "enr-" + id,
			MarkedBy:     "user-t1",
		})
	}
}

func outcomeStatuses(result *models.ReconcileResult) []models.OutcomeStatus {
	statuses := make([]models.OutcomeStatus, 0, len(result.Results))
	for _, outcome := range result.Results {
		statuses = append(statuses, outcome.Status)
	}
	return statuses
}

func scenarioBatch() ReconcileRequest {
	return ReconcileRequest{Records: []models.AttendanceMark{
		{StudentID: "stu-1", Present: true},
		{StudentID: "stu-2", Present: false},
		{StudentID: "stu-99", Present: true},
	}}
}

func TestAttendanceServiceReconcileIsolatesUnenrolledStudent(t *testing.T) {
	f := newAttendanceFixture(t, 4)
	f.seedRoster("stu-1", "stu-2", "stu-3")

	result, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", scenarioBatch())
	require.NoError(t, err)

	assert.Equal(t, []models.OutcomeStatus{models.OutcomeSuccess, models.OutcomeSuccess, models.OutcomeFailed}, outcomeStatuses(result))
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "stu-99", result.Results[2].StudentID)
	assert.Equal(t, "student not enrolled in this class section", result.Results[2].Reason)
	assert.Nil(t, result.Results[2].Attendance)

	row1, ok := f.store.row("session-s", "stu-1")
	require.True(t, ok)
	assert.True(t, row1.Present)
	assert.Equal(t, "roster-1", row1.ID)
	assert.Equal(t, "user-t1", row1.MarkedBy)
	row2, ok := f.store.row("session-s", "stu-2")
	require.True(t, ok)
	assert.False(t, row2.Present)
	_, ok = f.store.row("session-s", "stu-99")
	assert.False(t, ok)

	for _, scope := range f.enrollments.scopes {
		assert.Equal(t, cohortAssignment().RosterScope(), scope)
	}
	assert.Equal(t, []string{"attendance:overview:stu-1", "attendance:overview:stu-2"}, f.cache.deleted())

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.ReconcileSucceeded)
	assert.Equal(t, uint64(1), snapshot.ReconcileFailed)
}

func TestAttendanceServiceReconcileIsIdempotent(t *testing.T) {
	f := newAttendanceFixture(t, 4)
	f.seedRoster("stu-1", "stu-2", "stu-3")

	first, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", scenarioBatch())
	require.NoError(t, err)
	afterFirst := map[string]models.Attendance{}
	for _, id := range []string{"stu-1", "stu-2"} {
		afterFirst[id], _ = f.store.row("session-s", id)
	}

	second, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", scenarioBatch())
	require.NoError(t, err)

	assert.Equal(t, outcomeStatuses(first), outcomeStatuses(second))
	for _, id := range []string{"stu-1", "stu-2"} {
		row, _ := f.store.row("session-s", id)
		assert.Equal(t, afterFirst[id].ID, row.ID)
		assert.Equal(t, afterFirst[id].Present, row.Present)
		assert.Equal(t, afterFirst[id].EnrollmentID, row.EnrollmentID)
	}
	assert.Len(t, f.store.rows, 3)
}

func TestAttendanceServiceReconcileConcurrentBatchesConverge(t *testing.T) {
	f := newAttendanceFixture(t, 4)
	f.seedRoster("stu-1")
	f.enrollments.enroll("stu-late", "enr-late")

	batch := ReconcileRequest{Records: []models.AttendanceMark{
		{StudentID: "stu-1", Present: true},
		{StudentID: "stu-late", Present: true},
	}}

	const submissions = 16
	var wg sync.WaitGroup
	errs := make(chan error, submissions)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", batch)
			if err == nil && result.Succeeded != 2 {
				err = fmt.Errorf("expected 2 successes, got %d", result.Succeeded)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	f.store.mu.Lock()
	rowCount := len(f.store.rows)
	f.store.mu.Unlock()
	assert.Equal(t, 2, rowCount)

	row, ok := f.store.row("session-s", "stu-1")
	require.True(t, ok)
	assert.True(t, row.Present)
	assert.Equal(t, "roster-1", row.ID)

	late, ok := f.store.row("session-s", "stu-late")
	require.True(t, ok)
	assert.True(t, late.Present)
	assert.Equal(t, "enr-late", late.EnrollmentID)
}

func TestAttendanceServiceReconcileCreatesRowForLateEnrollment(t *testing.T) {
	f := newAttendanceFixture(t, 2)
	f.seedRoster("stu-1")
	f.enrollments.enroll("stu-late", "enr-late")

	result, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", ReconcileRequest{Records: []models.AttendanceMark{
		{StudentID: "stu-late", Present: true},
	}})
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSuccess, result.Results[0].Status)

	row, ok := f.store.row("session-s", "stu-late")
	require.True(t, ok)
	assert.Equal(t, "enr-late", row.EnrollmentID)
	assert.True(t, row.Present)
	assert.Equal(t, row.ID, result.Results[0].Attendance.ID)
}

func TestAttendanceServiceReconcileStorageFailureIsPerItem(t *testing.T) {
	f := newAttendanceFixture(t, 4)
	f.seedRoster("stu-1", "stu-2", "stu-3")
	f.store.upsertErrs = map[string]error{"stu-2": errors.New("deadlock detected")}
	f.enrollments.errs = map[string]error{"stu-3": errors.New("connection reset")}

	result, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", ReconcileRequest{Records: []models.AttendanceMark{
		{StudentID: "stu-1", Present: true},
		{StudentID: "stu-2", Present: true},
		{StudentID: "stu-3", Present: true},
	}})
	require.NoError(t, err)

	assert.Equal(t, []models.OutcomeStatus{models.OutcomeSuccess, models.OutcomeFailed, models.OutcomeFailed}, outcomeStatuses(result))
	assert.Equal(t, "failed to record attendance", result.Results[1].Reason)
	assert.Equal(t, "failed to verify enrollment", result.Results[2].Reason)
	row, _ := f.store.row("session-s", "stu-1")
	assert.True(t, row.Present)
}

func TestAttendanceServiceReconcilePreservesSubmissionOrder(t *testing.T) {
	f := newAttendanceFixture(t, 8)
	const n = 40
	marks := make([]models.AttendanceMark, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("stu-%02d", i)
		if i%5 != 0 {
			f.enrollments.enroll(id, "enr-"+id)
		}
		marks = append(marks, models.AttendanceMark{StudentID: id, Present: i%2 == 0})
	}
	// Earlier students finish last.
	f.store.upsertDelay = func(studentID string) time.Duration {
		var idx int
		_, _ = fmt.Sscanf(studentID, "stu-%d", &idx)
		return time.Duration(n-idx) * 100 * time.Microsecond
	}

	result, err := f.service.Reconcile(context.Background(), teacherActor(), "session-s", ReconcileRequest{Records: marks})
	require.NoError(t, err)
	require.Len(t, result.Results, n)
	for i, outcome := range result.Results {
		assert.Equal(t, marks[i].StudentID, outcome.StudentID)
		if i%5 == 0 {
			assert.Equal(t, models.OutcomeFailed, outcome.Status)
		} else {
			require.Equal(t, models.OutcomeSuccess, outcome.Status)
			assert.Equal(t, marks[i].Present, outcome.Attendance.Present)
		}
	}
	assert.Equal(t, 32, result.Succeeded)
	assert.Equal(t, 8, result.Failed)
}

func TestAttendanceServiceReconcileRejectsBeforeProcessing(t *testing.T) {
	tests := []struct {
		name      string
		actor     models.Actor
		sessionID string
		req       ReconcileRequest
		status    int
	}{
		{name: "empty batch", actor: teacherActor(), sessionID: "session-s", req: ReconcileRequest{}, status: http.StatusBadRequest},
		{name: "blank student", actor: teacherActor(), sessionID: "session-s", req: ReconcileRequest{Records: []models.AttendanceMark{{Present: true}}}, status: http.StatusBadRequest},
		{name: "duplicate student", actor: teacherActor(), sessionID: "session-s", req: ReconcileRequest{Records: []models.AttendanceMark{{StudentID: "stu-1"}, {StudentID: "stu-1", Present: true}}}, status: http.StatusBadRequest},
		{name: "missing session", actor: teacherActor(), sessionID: "session-missing", req: scenarioBatch(), status: http.StatusNotFound},
		{name: "other teacher session", actor: teacherActor(), sessionID: "session-foreign", req: scenarioBatch(), status: http.StatusForbidden},
		{name: "no teacher profile", actor: studentActor("stu-1"), sessionID: "session-s", req: scenarioBatch(), status: http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newAttendanceFixture(t, 2)
			f.seedRoster("stu-1", "stu-2")

			_, err := f.service.Reconcile(context.Background(), tc.actor, tc.sessionID, tc.req)
			requireAppError(t, err, tc.status)
			assert.Zero(t, f.store.upserts)
			assert.Empty(t, f.enrollments.scopes)
		})
	}
}

func TestAttendanceServiceMarkByRollNumbers(t *testing.T) {
	f := newAttendanceFixture(t, 2)
	f.seedRoster("stu-1", "stu-2")
	f.students.students = []models.Student{
		{ID: "stu-1", RollNumber: "CSE001"},
		{ID: "stu-2", RollNumber: "CSE002"},
		{ID: "stu-x", RollNumber: "ECE001"},
	}

	result, err := f.service.MarkByRollNumbers(context.Background(), teacherActor(), "session-s", MarkByRollNumbersRequest{
		RollNumbers: []string{"CSE002", "UNKNOWN", " CSE001 ", "ECE001"},
		Present:     true,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 4)

	assert.Equal(t, "CSE002", result.Results[0].RollNumber)
	assert.Equal(t, models.OutcomeSuccess, result.Results[0].Status)
	assert.Equal(t, "UNKNOWN", result.Results[1].RollNumber)
	assert.Equal(t, "roll number not found", result.Results[1].Reason)
	assert.Equal(t, "CSE001", result.Results[2].RollNumber)
	assert.Equal(t, "stu-1", result.Results[2].StudentID)
	assert.Equal(t, models.OutcomeSuccess, result.Results[2].Status)
	assert.Equal(t, "stu-x", result.Results[3].StudentID)
	assert.Equal(t, "student not enrolled in this class section", result.Results[3].Reason)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)

	_, err = f.service.MarkByRollNumbers(context.Background(), teacherActor(), "session-s", MarkByRollNumbersRequest{RollNumbers: []string{"A", "A"}})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestAttendanceServiceUpdateRecord(t *testing.T) {
	f := newAttendanceFixture(t, 1)
	f.seedRoster("stu-1")
	f.store.seed(models.Attendance{ID: "foreign-row", SessionID: "session-foreign", StudentID: "stu-9"})
	present := true

	updated, err := f.service.UpdateRecord(context.Background(), teacherActor(), "roster-1", UpdateAttendanceRequest{Present: &present})
	require.NoError(t, err)
	assert.True(t, updated.Present)
	assert.Equal(t, "user-t1", updated.MarkedBy)
	assert.Equal(t, "enr-stu-1", updated.EnrollmentID)
	assert.Equal(t, []string{"attendance:overview:stu-1"}, f.cache.deleted())

	_, err = f.service.UpdateRecord(context.Background(), teacherActor(), "missing", UpdateAttendanceRequest{Present: &present})
	requireAppError(t, err, http.StatusNotFound)

	_, err = f.service.UpdateRecord(context.Background(), teacherActor(), "foreign-row", UpdateAttendanceRequest{Present: &present})
	requireAppError(t, err, http.StatusForbidden)

	_, err = f.service.UpdateRecord(context.Background(), teacherActor(), "roster-1", UpdateAttendanceRequest{})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestAttendanceServiceSessionAttendanceAndExport(t *testing.T) {
	f := newAttendanceFixture(t, 1)
	f.seedRoster("stu-1")

	rows, err := f.service.SessionAttendance(context.Background(), teacherActor(), "session-s")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "R-stu-1", rows[0].RollNumber)

	result, err := f.service.ExportSession(context.Background(), teacherActor(), "session-s", ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasPrefix(result.Filename, "attendance-2024-01-10-"))
	assert.Contains(t, string(result.Payload), "Roll Number,Student,Status,Marked At")
	assert.Contains(t, string(result.Payload), "R-stu-1,Student stu-1,Absent")

	_, err = f.service.ExportSession(context.Background(), teacherActor(), "session-foreign", ExportFormatCSV)
	requireAppError(t, err, http.StatusForbidden)
}

func TestAttendanceServiceAssignmentStats(t *testing.T) {
	f := newAttendanceFixture(t, 1)
	f.store.sessionStats = []models.SessionStat{
		{SessionID: "s1", Present: 2, Absent: 1},
		{SessionID: "s2", Present: 1, Absent: 2},
		{SessionID: "s3", Present: 0, Absent: 0},
	}
	f.store.studentStats = []models.StudentStat{
		{StudentID: "stu-1", Present: 2, Absent: 0},
		{StudentID: "stu-2", Present: 1, Absent: 1},
		{StudentID: "stu-3", Present: 0, Absent: 2},
	}

	stats, err := f.service.AssignmentStats(context.Background(), teacherActor(), "assign-1")
	require.NoError(t, err)
	assert.Equal(t, []int{67, 33, 0}, []int{stats.Sessions[0].Rate, stats.Sessions[1].Rate, stats.Sessions[2].Rate})
	assert.Equal(t, []int{100, 50, 0}, []int{stats.Students[0].Rate, stats.Students[1].Rate, stats.Students[2].Rate})
	assert.Equal(t, 3, stats.TotalPresent)
	assert.Equal(t, 6, stats.TotalMarks)
	assert.Equal(t, 50, stats.OverallRate)

	_, err = f.service.AssignmentStats(context.Background(), teacherActor(), "assign-foreign")
	requireAppError(t, err, http.StatusForbidden)
}

func TestParseExportFormat(t *testing.T) {
	format, err := ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, format)

	format, err = ParseExportFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatPDF, format)

	_, err = ParseExportFormat("xlsx")
	requireAppError(t, err, http.StatusBadRequest)
}
