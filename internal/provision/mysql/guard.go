// Package mysql implements the provisioning guard for MySQL/MariaDB using
// database/sql and the go-sql-driver.
//
// MySQL has no maintenance database to speak of: an admin connection simply
// selects no default schema, so the guard strips the database name from the
// application DSN and connects server-wide.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"geoetl/internal/provision"
)

// Kind is the registry key for this backend.
const Kind = "mysql"

// errDBCreateExists is MySQL error 1007 (ER_DB_CREATE_EXISTS).
const errDBCreateExists = 1007

func init() {
	provision.Register(Kind, func(ctx context.Context, dsn string) (provision.Guard, error) {
		return Connect(ctx, dsn)
	})
}

// Guard provisions databases on a MySQL server.
type Guard struct {
	db *sql.DB
}

// Connect opens an admin connection using the application DSN with the
// default schema removed.
func Connect(ctx context.Context, dsn string) (*Guard, error) {
	admin, err := AdminDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", admin)
	if err != nil {
		return nil, fmt.Errorf("open admin connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping server: %w", err)
	}
	return &Guard{db: db}, nil
}

// AdminDSN clears the schema component of a go-sql-driver DSN
// (user:pass@tcp(host:3306)/etl -> user:pass@tcp(host:3306)/).
func AdminDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.DBName = ""
	return cfg.FormatDSN(), nil
}

// DatabaseExists checks information_schema for the exact schema name.
func (g *Guard) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := g.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE BINARY schema_name = ?)", name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query information_schema: %w", err)
	}
	return exists, nil
}

// CreateDatabase issues CREATE DATABASE with the name quoted as an
// identifier. Error 1007 (database exists) wraps provision.ErrAlreadyExists
// so a lost create race still counts as success.
func (g *Guard) CreateDatabase(ctx context.Context, name string) error {
	if _, err := g.db.ExecContext(ctx, "CREATE DATABASE "+quoteIdent(name)); err != nil {
		return classifyCreateErr(err)
	}
	return nil
}

// classifyCreateErr maps MySQL error 1007 to provision.ErrAlreadyExists and
// leaves every other failure untouched.
func classifyCreateErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDBCreateExists {
		return fmt.Errorf("%w: %s", provision.ErrAlreadyExists, myErr.Message)
	}
	return err
}

// Close closes the admin connection pool.
func (g *Guard) Close(ctx context.Context) error {
	return g.db.Close()
}

// quoteIdent backtick-quotes a MySQL identifier, doubling embedded backticks.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
