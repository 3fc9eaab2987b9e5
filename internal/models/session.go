package models

import "time"

// Session is one class meeting of a teaching assignment.
type Session struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	Date         time.Time `db:"date" json:"date"`
	Topic        *string   `db:"topic" json:"topic,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SessionSummary is a session with its attendance tallies.
type SessionSummary struct {
	Session
	PresentCount int `db:"present_count" json:"present_count"`
	TotalCount   int `db:"total_count" json:"total_count"`
}
