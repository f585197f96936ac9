// Package provision implements idempotent database provisioning: it checks
// the server catalog for a database with a configured name and creates the
// database when it is absent. It is the Go replacement for the dblink-based
// init SQL that used to run during container provisioning.
//
// Design goals:
//
//  1. Idempotence: running Ensure any number of times leaves exactly one
//     database with the target name on the server.
//  2. Race tolerance: the catalog check and the create are not atomic with
//     respect to other initializers, so a create that loses the race is
//     mapped to ErrAlreadyExists by backends and treated as success here.
//  3. Backend neutrality: the catalog query and create statement differ per
//     server, so concrete guards live in subpackages (postgres, mysql,
//     mssql) and register themselves with a factory, mirroring the storage
//     backend registry used elsewhere in this project.
//
// No retries, no custom error taxonomy: anything other than "already
// exists" propagates to the caller wrapped with context.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// DefaultDatabase is the database name provisioned when none is configured.
// It matches the name the rest of the pipeline connects to.
const DefaultDatabase = "etl"

// ErrAlreadyExists is returned (wrapped) by Guard.CreateDatabase when the
// server reports the database already present. Ensure maps it to
// StatusExists; callers racing another initializer therefore both succeed.
var ErrAlreadyExists = errors.New("database already exists")

// Guard is a server-specific provisioner. Implementations hold an admin
// connection to the server's maintenance context (not the target database,
// which may not exist yet).
type Guard interface {
	// DatabaseExists reports whether a database with the exact given name
	// exists in the server catalog. The check is case-sensitive; no
	// trimming or folding is applied to name.
	DatabaseExists(ctx context.Context, name string) (bool, error)

	// CreateDatabase creates the database. Implementations must run the
	// statement outside any transaction (CREATE DATABASE cannot run inside
	// one on most servers) and must return an error wrapping
	// ErrAlreadyExists when the server reports a duplicate.
	CreateDatabase(ctx context.Context, name string) error

	// Close releases the admin connection.
	Close(ctx context.Context) error
}

// Status is the terminal state of one Ensure invocation.
type Status int

const (
	// StatusExists means the database was already present: no side effects.
	StatusExists Status = iota
	// StatusCreated means the database was created by this invocation.
	StatusCreated
)

func (s Status) String() string {
	switch s {
	case StatusExists:
		return "exists"
	case StatusCreated:
		return "created"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Ensure checks for the named database and creates it when absent.
//
// Both outcomes are success: StatusExists when the database was already
// there (or another initializer won the create race), StatusCreated when
// this call created it. Any other failure (privileges, connectivity) is
// returned unmodified apart from wrapping; there is no retry.
func Ensure(ctx context.Context, g Guard, name string) (Status, error) {
	if name == "" {
		name = DefaultDatabase
	}

	exists, err := g.DatabaseExists(ctx, name)
	if err != nil {
		return StatusExists, fmt.Errorf("check database %q: %w", name, err)
	}
	if exists {
		log.Printf("provision: database %q already exists", name)
		return StatusExists, nil
	}

	if err := g.CreateDatabase(ctx, name); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a create race against another initializer; the database
			// is there, which is all the caller asked for.
			log.Printf("provision: database %q created concurrently, treating as existing", name)
			return StatusExists, nil
		}
		return StatusExists, fmt.Errorf("create database %q: %w", name, err)
	}

	log.Printf("provision: created database %q", name)
	return StatusCreated, nil
}

// Factory opens a Guard from an application DSN. Implementations derive
// their own admin DSN from it (maintenance database, no default schema, ...).
type Factory func(ctx context.Context, dsn string) (Guard, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the Guard factory for a backend kind
// (e.g. "postgres"). It is called from backend packages' init functions.
func Register(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = f
}

// Open builds a Guard for the given backend kind using its registered
// factory. Callers own the returned Guard and must Close it.
func Open(ctx context.Context, kind, dsn string) (Guard, error) {
	factoryMu.RLock()
	f, ok := factories[kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provisioner registered for kind=%q", kind)
	}
	return f(ctx, dsn)
}

// Kinds returns the registered backend kinds, for CLI usage/help output.
func Kinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
