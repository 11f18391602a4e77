package sqlstore

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"casebeam/internal/store"
)

// isUniqueViolation reports whether err is a unique constraint failure on
// either dialect.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// nameTaken turns a unique violation on categories into store.ErrNameTaken.
func nameTaken(err error) error {
	if isUniqueViolation(err) {
		return store.ErrNameTaken
	}
	return err
}
