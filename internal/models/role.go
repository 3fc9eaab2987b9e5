package models

import "strings"

// UserRole is the closed set of account roles.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// ParseUserRole normalises raw into a known role.
func ParseUserRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Valid reports whether r is one of the declared roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// Capability names an action class gated by role.
type Capability string

const (
	// CapManageDirectory covers users, branches, courses, assignments and enrollments.
	CapManageDirectory Capability = "manage_directory"
	// CapTakeAttendance covers sessions and attendance marking.
	CapTakeAttendance Capability = "take_attendance"
	// CapViewOwnAttendance covers the student dashboard reads.
	CapViewOwnAttendance Capability = "view_own_attendance"
)

var roleCapabilities = map[UserRole]map[Capability]struct{}{
	RoleAdmin: {
		CapManageDirectory:   {},
		CapTakeAttendance:    {},
		CapViewOwnAttendance: {},
	},
	RoleTeacher: {
		CapTakeAttendance:    {},
		CapViewOwnAttendance: {},
	},
	RoleStudent: {
		CapViewOwnAttendance: {},
	},
}

// AuthorizationResult is the typed outcome of a capability check.
type AuthorizationResult struct {
	Allowed    bool
	Role       UserRole
	Capability Capability
	Reason     string
}

// Authorize checks whether role grants capability.
func Authorize(role UserRole, capability Capability) AuthorizationResult {
	result := AuthorizationResult{Role: role, Capability: capability}
	if !role.Valid() {
		result.Reason = "unknown role"
		return result
	}
	if _, ok := roleCapabilities[role][capability]; !ok {
		result.Reason = "role " + string(role) + " lacks " + string(capability)
		return result
	}
	result.Allowed = true
	return result
}

// Section identifies a class section within a semester.
type Section string

const (
	SectionA    Section = "A"
	SectionB    Section = "B"
	SectionC    Section = "C"
	SectionD    Section = "D"
	SectionNone Section = "NONE"
)

// Valid reports whether s is a declared section.
func (s Section) Valid() bool {
	switch s {
	case SectionA, SectionB, SectionC, SectionD, SectionNone:
		return true
	}
	return false
}

// EnrollableSection maps a student's home section onto a concrete class section.
func (s Section) EnrollableSection() Section {
	if s == "" || s == SectionNone {
		return SectionA
	}
	return s
}
