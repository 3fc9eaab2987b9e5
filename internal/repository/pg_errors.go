package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// IsUniqueViolation reports whether err is a postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	return hasPGCode(err, pgUniqueViolation)
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	return hasPGCode(err, pgForeignKeyViolation)
}

// IsInvalidText reports whether postgres rejected a value for its column type,
// such as a malformed uuid. Lookups treat it as a missing row.
func IsInvalidText(err error) bool {
	return hasPGCode(err, pgInvalidTextRepr)
}

func hasPGCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// parseableIDs drops ids that cannot match a uuid primary key.
func parseableIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
