package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueMessage  = "UNIQUE constraint failed"
	sqliteUniqueCodeText = "(2067)"
)

// IsDuplicateKeyErr reports a unique-constraint violation from any of the
// supported dialects. The sweep run ledger relies on it to detect a second
// run for the same date.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	// The sqlite drivers only expose the failure through the message.
	msg := err.Error()
	return strings.Contains(msg, sqliteUniqueMessage) || strings.Contains(msg, sqliteUniqueCodeText)
}
