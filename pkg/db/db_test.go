package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDialectByType(t *testing.T) {
	base := config.Config{DBHost: "db", DBPort: "5432", DBName: "mealsub", DBUser: "app", DBPassword: "p@ss"}

	for _, typ := range []string{"", "postgres", "mysql", "sqlite"} {
		cfg := base
		cfg.DBType = typ
		d, err := Dialect(cfg)
		require.NoError(t, err, typ)
		assert.NotNil(t, d, typ)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	dsn := postgresDSN(config.Config{DBHost: "db", DBPort: "5432", DBName: "mealsub", DBUser: "app", DBPassword: "p@ss word"})
	assert.Contains(t, dsn, "postgres://app:p%40ss%20word@db:5432/mealsub?")
	assert.Contains(t, dsn, "timezone=UTC")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "mealsub.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN(""))
	assert.Contains(t, sqliteDSN(":memory:"), "file::memory:")
}

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres fk", &pgconn.PgError{Code: "23503"}, false},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", &mysql.MySQLError{Number: 1452}, false},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: sweep_runs.run_date (2067)"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}
