package database

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateID is returned when an insert collides with an existing
// primary key. Callers must be able to tell this apart from any other
// storage failure.
var ErrDuplicateID = errors.New("id already exists")

// isDuplicateKeyError reports whether err is a primary-key/unique
// constraint violation from either backend.
func isDuplicateKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505 = unique_violation
		return pqErr.Code == "23505"
	}

	return false
}
