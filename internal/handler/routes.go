package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/middleware"
	"github.com/noah-isme/college-attendance-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Catalog    *CatalogHandler
	Enrollment *EnrollmentHandler
	Attendance *AttendanceHandler
	Students   *StudentHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts the API under prefix and the probes at the root.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, tokens middleware.TokenValidator, logger *zap.Logger) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.POST("/auth/login", h.Auth.Login)

	authed := api.Group("", middleware.JWT(tokens))
	authed.GET("/auth/me", h.Auth.Me)

	admin := authed.Group("/admin", middleware.RequireCapability(models.CapManageDirectory, logger))
	admin.GET("/users", h.Users.List)
	admin.POST("/users", h.Users.Create)
	admin.PUT("/students/:id/semester", h.Users.PromoteStudent)
	admin.GET("/branches", h.Catalog.ListBranches)
	admin.POST("/branches", h.Catalog.CreateBranch)
	admin.GET("/courses", h.Catalog.ListCourses)
	admin.POST("/courses", h.Catalog.CreateCourse)
	admin.POST("/teaching-assignments", h.Enrollment.CreateAssignment)
	admin.POST("/enrollments", h.Enrollment.Enroll)
	admin.POST("/enrollments/batch", h.Enrollment.BatchEnroll)
	admin.GET("/metrics", h.Metrics.Snapshot)

	teachers := authed.Group("/teachers", middleware.RequireCapability(models.CapTakeAttendance, logger))
	teachers.GET("/assignments", h.Enrollment.MyAssignments)
	teachers.GET("/assignments/:id/stats", h.Attendance.AssignmentStats)
	teachers.POST("/sessions", h.Attendance.CreateSession)
	teachers.GET("/sessions/:id", h.Attendance.ListSessions)
	teachers.GET("/sessions/:id/attendance", h.Attendance.SessionAttendance)
	teachers.GET("/sessions/:id/attendance/export", h.Attendance.ExportSession)
	teachers.PUT("/attendance/:id", h.Attendance.UpdateRecord)
	teachers.PUT("/attendance/batch/:id", h.Attendance.Reconcile)
	teachers.PUT("/attendance/roll-numbers/:id", h.Attendance.MarkByRollNumbers)

	students := authed.Group("/students", middleware.RequireCapability(models.CapViewOwnAttendance, logger))
	students.GET("/enrollments", h.Students.Enrollments)
	students.GET("/attendance-overview", h.Students.Overview)
	students.GET("/attendance/:id", h.Students.CourseAttendance)
}
