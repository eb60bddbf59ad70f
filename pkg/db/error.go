package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	// GORM wraps driver errors, unwrap first
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// DuplicateKeyOn reports whether err is a unique violation mentioning the given
// constraint, index or column name.
func DuplicateKeyOn(err error, name string) bool {
	if !IsDuplicateKeyErr(err) {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(strings.ToLower(pgErr.ConstraintName), name) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.Contains(strings.ToLower(pqErr.Constraint), name) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), name)
}
