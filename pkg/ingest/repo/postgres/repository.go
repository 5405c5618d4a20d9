package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-repository/pkg/ingest"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements ingest.CoordinateIndex using PostgreSQL
type Repository struct {
	db  DBTX
	now func() time.Time
}

// New creates a new PostgreSQL coordinate index
func New(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NewWithPool creates a new PostgreSQL coordinate index with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS coordinates (
	id          UUID PRIMARY KEY,
	group_id    VARCHAR(255) NOT NULL,
	artifact_id VARCHAR(255) NOT NULL,
	version     VARCHAR(255) NOT NULL,
	descriptor  JSONB NOT NULL DEFAULT '{}'::jsonb,
	purl        TEXT NOT NULL,
	created_by  VARCHAR(255) NOT NULL,
	updated_by  VARCHAR(255) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT unique_coordinate UNIQUE (group_id, artifact_id, version)
)`

// Migrate creates the coordinates table when it is missing
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return r.handlePostgresError("migrate", ingest.Coordinate{}, err)
	}
	return nil
}

func (r *Repository) handlePostgresError(op string, c ingest.Coordinate, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			err = ingest.ErrCoordinateExists
		case "23502": // not_null_violation
			err = fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			err = fmt.Errorf("table does not exist - database migration required")
		default:
			err = fmt.Errorf("database error: %s (code: %s)", pgErr.Message, pgErr.Code)
		}
	} else if errors.Is(err, pgx.ErrNoRows) {
		err = ingest.ErrCoordinateNotFound
	}
	return &ingest.IndexError{Coordinate: c, Op: op, Err: err}
}

func (r *Repository) Find(ctx context.Context, c ingest.Coordinate) (*ingest.IndexEntry, error) {
	query := `
		SELECT id, descriptor, purl, created_by, updated_by, created_at, updated_at
		FROM coordinates WHERE group_id = $1 AND artifact_id = $2 AND version = $3`

	var (
		entry     ingest.IndexEntry
		raw       []byte
		createdBy string
		updatedBy string
	)
	err := r.db.QueryRow(ctx, query, c.Group, c.Name, c.Version).Scan(
		&entry.ID, &raw, &entry.PackageURL, &createdBy, &updatedBy,
		&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, r.handlePostgresError("find", c, err)
	}

	if err := json.Unmarshal(raw, &entry.Descriptor); err != nil {
		return nil, &ingest.IndexError{Coordinate: c, Op: "find", Err: fmt.Errorf("decode descriptor: %w", err)}
	}
	entry.Descriptor.Coordinate = c
	entry.CreatedBy = ingest.Identity(createdBy)
	entry.UpdatedBy = ingest.Identity(updatedBy)
	return &entry, nil
}

func (r *Repository) Exists(ctx context.Context, c ingest.Coordinate) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM coordinates WHERE group_id = $1 AND artifact_id = $2 AND version = $3
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, c.Group, c.Name, c.Version).Scan(&exists); err != nil {
		return false, r.handlePostgresError("exists", c, err)
	}
	return exists, nil
}

func (r *Repository) Insert(ctx context.Context, who ingest.Identity, d ingest.Descriptor) error {
	raw, err := r.encode("insert", d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO coordinates (
			id, group_id, artifact_id, version, descriptor, purl,
			created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $8)`

	now := r.now().UTC()
	_, err = r.db.Exec(ctx, query,
		uuid.New(), d.Group, d.Name, d.Version, raw, d.PackageURL(),
		string(who), now)
	if err != nil {
		return r.handlePostgresError("insert", d.Coordinate, err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, who ingest.Identity, d ingest.Descriptor) error {
	raw, err := r.encode("update", d)
	if err != nil {
		return err
	}

	query := `
		UPDATE coordinates SET descriptor = $4, purl = $5, updated_by = $6, updated_at = $7
		WHERE group_id = $1 AND artifact_id = $2 AND version = $3`

	tag, err := r.db.Exec(ctx, query,
		d.Group, d.Name, d.Version, raw, d.PackageURL(), string(who), r.now().UTC())
	if err != nil {
		return r.handlePostgresError("update", d.Coordinate, err)
	}
	if tag.RowsAffected() == 0 {
		return &ingest.IndexError{Coordinate: d.Coordinate, Op: "update", Err: ingest.ErrCoordinateNotFound}
	}
	return nil
}

// Upsert is one INSERT ... ON CONFLICT statement. For refresh, xmax = 0
// on the returned row tells a fresh insert apart from an update. For keep,
// DO NOTHING returns no row when the coordinate already existed.
func (r *Repository) Upsert(ctx context.Context, who ingest.Identity, d ingest.Descriptor, mode ingest.UpsertMode) (bool, error) {
	raw, err := r.encode("upsert", d)
	if err != nil {
		return false, err
	}

	insert := `
		INSERT INTO coordinates (
			id, group_id, artifact_id, version, descriptor, purl,
			created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $8)`

	args := []interface{}{
		uuid.New(), d.Group, d.Name, d.Version, raw, d.PackageURL(),
		string(who), r.now().UTC(),
	}

	switch mode {
	case ingest.UpsertRefresh:
		query := insert + `
		ON CONFLICT (group_id, artifact_id, version) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			purl = EXCLUDED.purl,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)`

		var inserted bool
		if err := r.db.QueryRow(ctx, query, args...).Scan(&inserted); err != nil {
			return false, r.handlePostgresError("upsert", d.Coordinate, err)
		}
		return inserted, nil

	default:
		query := insert + `
		ON CONFLICT (group_id, artifact_id, version) DO NOTHING
		RETURNING id`

		var id uuid.UUID
		err := r.db.QueryRow(ctx, query, args...).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, r.handlePostgresError("upsert", d.Coordinate, err)
		}
		return true, nil
	}
}

func (r *Repository) encode(op string, d ingest.Descriptor) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, &ingest.IndexError{Coordinate: d.Coordinate, Op: op, Err: err}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, &ingest.IndexError{Coordinate: d.Coordinate, Op: op, Err: fmt.Errorf("encode descriptor: %w", err)}
	}
	return raw, nil
}
