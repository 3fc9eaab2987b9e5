package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizeMatrix(t *testing.T) {
	cases := []struct {
		role    UserRole
		cap     Capability
		allowed bool
	}{
		{RoleAdmin, CapManageDirectory, true},
		{RoleAdmin, CapTakeAttendance, true},
		{RoleAdmin, CapViewOwnAttendance, true},
		{RoleTeacher, CapManageDirectory, false},
		{RoleTeacher, CapTakeAttendance, true},
		{RoleTeacher, CapViewOwnAttendance, true},
		{RoleStudent, CapManageDirectory, false},
		{RoleStudent, CapTakeAttendance, false},
		{RoleStudent, CapViewOwnAttendance, true},
		{UserRole("SUPERUSER"), CapViewOwnAttendance, false},
	}

	for _, tc := range cases {
		result := Authorize(tc.role, tc.cap)
		assert.Equal(t, tc.allowed, result.Allowed, "%s/%s", tc.role, tc.cap)
		if !tc.allowed {
			assert.NotEmpty(t, result.Reason)
		}
	}
}

func TestParseUserRole(t *testing.T) {
	role, ok := ParseUserRole(" teacher ")
	assert.True(t, ok)
	assert.Equal(t, RoleTeacher, role)

	_, ok = ParseUserRole("janitor")
	assert.False(t, ok)
}

func TestEnrollableSection(t *testing.T) {
	assert.Equal(t, SectionA, SectionNone.EnrollableSection())
	assert.Equal(t, SectionA, Section("").EnrollableSection())
	assert.Equal(t, SectionC, SectionC.EnrollableSection())
}
