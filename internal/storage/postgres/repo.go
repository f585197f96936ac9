// Package postgres implements the placement repository on PostgreSQL using
// pgx v5. Batches are written with a single pipelined pgx.Batch per call:
// one coordinate insert and one address insert per placement, both with
// ON CONFLICT DO NOTHING on the (latitude, longitude) key.
//
// Duplicate handling follows the original pipeline's behavior: a conflicting
// row is logged and skipped, the batch keeps going. Re-running an input file
// that was partially loaded is therefore safe.
package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"geoetl/internal/geo"
	"geoetl/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN             string // connection string for pgxpool
	CoordinateTable string // default "coordinate_points"
	AddressTable    string // default "addresses"
}

// pgPoolLike is the minimal subset of *pgxpool.Pool the repository uses.
// The seam allows hermetic unit tests with a fake pool.
type pgPoolLike interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool pgPoolLike
	cfg  Config

	insertCoordSQL string
	insertAddrSQL  string
}

// NewRepository connects a pgxpool to cfg.DSN and wraps it. Callers own the
// repository and must Close it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return newRepository(pool, cfg), nil
}

func newRepository(pool pgPoolLike, cfg Config) *Repository {
	if cfg.CoordinateTable == "" {
		cfg.CoordinateTable = "coordinate_points"
	}
	if cfg.AddressTable == "" {
		cfg.AddressTable = "addresses"
	}
	coordTbl := pgx.Identifier{cfg.CoordinateTable}.Sanitize()
	addrTbl := pgx.Identifier{cfg.AddressTable}.Sanitize()
	return &Repository{
		pool: pool,
		cfg:  cfg,
		insertCoordSQL: fmt.Sprintf(
			`INSERT INTO %s (latitude, longitude, distance_km, bearing_degrees)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (latitude, longitude) DO NOTHING`, coordTbl),
		insertAddrSQL: fmt.Sprintf(
			`INSERT INTO %s (street_number, street_name, neighborhood, city, state, country, postal_code, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (latitude, longitude) DO NOTHING`, addrTbl),
	}
}

// EnsureTables creates the destination tables when absent. The unique key on
// (latitude, longitude) is what makes SaveBatch's conflict handling work;
// it doubles as the dedupe backstop across runs.
func (r *Repository) EnsureTables(ctx context.Context) error {
	coordTbl := pgx.Identifier{r.cfg.CoordinateTable}.Sanitize()
	addrTbl := pgx.Identifier{r.cfg.AddressTable}.Sanitize()

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			distance_km DOUBLE PRECISION,
			bearing_degrees DOUBLE PRECISION,
			UNIQUE (latitude, longitude)
		)`, coordTbl),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			street_number TEXT NOT NULL,
			street_name TEXT NOT NULL,
			neighborhood TEXT NOT NULL,
			city TEXT NOT NULL,
			state TEXT NOT NULL,
			country TEXT NOT NULL,
			postal_code TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			UNIQUE (latitude, longitude)
		)`, addrTbl),
	}
	for _, stmt := range ddl {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// SaveBatch writes the batch in one pipelined round trip. A placement counts
// as saved when its coordinate row was inserted; a conflict on the unique
// key is logged and skipped.
func (r *Repository) SaveBatch(ctx context.Context, batch []geo.Placement) (storage.SaveResult, error) {
	var res storage.SaveResult
	if len(batch) == 0 {
		return res, nil
	}

	b := &pgx.Batch{}
	for _, p := range batch {
		c, a := p.Coordinate, p.Address
		b.Queue(r.insertCoordSQL, c.Latitude, c.Longitude, c.DistanceKM, c.BearingDegrees)
		b.Queue(r.insertAddrSQL,
			a.StreetNumber, a.StreetName, a.Neighborhood, a.City, a.State,
			a.Country, a.PostalCode, a.Latitude, a.Longitude)
	}

	br := r.pool.SendBatch(ctx, b)
	defer br.Close()

	for _, p := range batch {
		coordTag, err := br.Exec()
		if err != nil {
			return res, fmt.Errorf("insert coordinate (%v, %v): %w", p.Coordinate.Latitude, p.Coordinate.Longitude, err)
		}
		addrTag, err := br.Exec()
		if err != nil {
			return res, fmt.Errorf("insert address (%v, %v): %w", p.Address.Latitude, p.Address.Longitude, err)
		}

		if coordTag.RowsAffected() == 0 {
			res.Conflicts++
			log.Printf("storage: coordinate (%v, %v) already saved, skipping", p.Coordinate.Latitude, p.Coordinate.Longitude)
			continue
		}
		res.Saved++
		if addrTag.RowsAffected() == 0 {
			// Coordinate was new but the address row existed; unusual, and
			// worth a line in the log.
			log.Printf("storage: address for (%v, %v) already present", p.Address.Latitude, p.Address.Longitude)
		}
	}
	return res, nil
}

// Close closes the underlying pool.
func (r *Repository) Close() {
	r.pool.Close()
}
