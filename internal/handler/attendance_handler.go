package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-attendance-api/internal/models"
	"github.com/noah-isme/college-attendance-api/internal/service"
	"github.com/noah-isme/college-attendance-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, actor models.Actor, req service.CreateSessionRequest) (*service.CreatedSession, error)
	ListByAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.SessionSummary, error)
}

type attendanceService interface {
	Reconcile(ctx context.Context, actor models.Actor, sessionID string, req service.ReconcileRequest) (*models.ReconcileResult, error)
	MarkByRollNumbers(ctx context.Context, actor models.Actor, sessionID string, req service.MarkByRollNumbersRequest) (*models.ReconcileResult, error)
	UpdateRecord(ctx context.Context, actor models.Actor, attendanceID string, req service.UpdateAttendanceRequest) (*models.Attendance, error)
	SessionAttendance(ctx context.Context, actor models.Actor, sessionID string) ([]models.SessionAttendanceRow, error)
	ExportSession(ctx context.Context, actor models.Actor, sessionID string, format service.ExportFormat) (*service.ExportResult, error)
	AssignmentStats(ctx context.Context, actor models.Actor, assignmentID string) (*models.AssignmentStats, error)
}

// AttendanceHandler exposes the teacher endpoints for sessions and attendance.
type AttendanceHandler struct {
	sessions   sessionService
	attendance attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(sessions sessionService, attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{sessions: sessions, attendance: attendance}
}

// CreateSession godoc
// @Summary Create session
// @Description Create a class session and snapshot its roster as absent records
// @Tags Teachers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/sessions [post]
func (h *AttendanceHandler) CreateSession(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	created, err := h.sessions.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// ListSessions godoc
// @Summary List sessions of an assignment
// @Tags Teachers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teaching assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/sessions/{id} [get]
func (h *AttendanceHandler) ListSessions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListByAssignment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// SessionAttendance godoc
// @Summary Session attendance sheet
// @Tags Teachers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/sessions/{id}/attendance [get]
func (h *AttendanceHandler) SessionAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.attendance.SessionAttendance(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ExportSession godoc
// @Summary Export session attendance
// @Tags Teachers
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /teachers/sessions/{id}/attendance/export [get]
func (h *AttendanceHandler) ExportSession(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.attendance.ExportSession(c.Request.Context(), actor, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// Reconcile godoc
// @Summary Batch mark attendance
// @Description Upsert presence for many students of one session; each item reports its own outcome
// @Tags Teachers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body service.ReconcileRequest true "Attendance records"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/attendance/batch/{id} [put]
func (h *AttendanceHandler) Reconcile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ReconcileRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	result, err := h.attendance.Reconcile(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkByRollNumbers godoc
// @Summary Mark attendance by roll number
// @Tags Teachers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body service.MarkByRollNumbersRequest true "Roll numbers"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teachers/attendance/roll-numbers/{id} [put]
func (h *AttendanceHandler) MarkByRollNumbers(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.MarkByRollNumbersRequest
	if !bindJSON(c, &req, "invalid roll number payload") {
		return
	}
	result, err := h.attendance.MarkByRollNumbers(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateRecord godoc
// @Summary Update one attendance record
// @Tags Teachers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attendance ID"
// @Param payload body service.UpdateAttendanceRequest true "Presence"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/attendance/{id} [put]
func (h *AttendanceHandler) UpdateRecord(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.attendance.UpdateRecord(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AssignmentStats godoc
// @Summary Assignment attendance statistics
// @Tags Teachers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teaching assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/assignments/{id}/stats [get]
func (h *AttendanceHandler) AssignmentStats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	stats, err := h.attendance.AssignmentStats(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
