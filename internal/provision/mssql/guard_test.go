package mssql

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"

	"geoetl/internal/provision"
)

func TestAdminDSNDropsDatabase(t *testing.T) {
	got, err := AdminDSN("sqlserver://sa:secret@db:1433?database=etl&encrypt=disable")
	if err != nil {
		t.Fatalf("AdminDSN: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}
	if u.Query().Get("database") != "" {
		t.Fatalf("admin DSN still selects a database: %q", got)
	}
	if u.Query().Get("encrypt") != "disable" {
		t.Fatalf("admin DSN lost unrelated parameters: %q", got)
	}
	if u.Host != "db:1433" {
		t.Fatalf("admin DSN lost host: %q", got)
	}
}

func TestAdminDSNRejectsOtherSchemes(t *testing.T) {
	if _, err := AdminDSN("postgres://etl@db/etl"); err == nil {
		t.Fatalf("AdminDSN accepted a non-sqlserver DSN")
	}
}

func TestQuoteIdent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"etl", "[etl]"},
		{"with space", "[with space]"},
		{"tricky]name", "[tricky]]name]"},
	}
	for _, tc := range cases {
		if got := quoteIdent(tc.in); got != tc.want {
			t.Fatalf("quoteIdent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassifyCreateErr(t *testing.T) {
	dup := mssql.Error{Number: errDatabaseExists, Message: "Database 'etl' already exists. Choose a different database name."}
	if err := classifyCreateErr(fmt.Errorf("exec: %w", dup)); !errors.Is(err, provision.ErrAlreadyExists) {
		t.Fatalf("duplicate error not mapped: %v", err)
	}

	denied := mssql.Error{Number: 262, Message: "CREATE DATABASE permission denied in database 'master'."}
	if err := classifyCreateErr(denied); errors.Is(err, provision.ErrAlreadyExists) {
		t.Fatalf("permission error misclassified as already-exists")
	}
}
