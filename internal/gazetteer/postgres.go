package gazetteer

import (
	"context"
	"errors"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lmia-map/internal/db"
)

// PlacesTable is the Postgres table backing PostgresProvider.
const PlacesTable = "gazetteer.places"

// PostgresMigration creates the gazetteer schema.
const PostgresMigration = `
CREATE SCHEMA IF NOT EXISTS gazetteer;

CREATE TABLE IF NOT EXISTS gazetteer.places (
	geoname_id   BIGINT NOT NULL,
	name         TEXT NOT NULL,
	name_norm    TEXT NOT NULL,
	province     TEXT NOT NULL,
	feature_code TEXT NOT NULL DEFAULT '',
	population   BIGINT NOT NULL DEFAULT 0,
	lat          DOUBLE PRECISION NOT NULL,
	lng          DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (geoname_id, name_norm)
);

CREATE INDEX IF NOT EXISTS idx_places_lookup ON gazetteer.places(province, name_norm);
`

const postgresLookup = `SELECT name, lat, lng FROM gazetteer.places
	WHERE province = $1 AND name_norm = $2
	ORDER BY ` + rankOrder + `
	LIMIT 1`

// PostgresProvider looks up places in a shared Postgres table.
type PostgresProvider struct {
	pool db.Pool
}

// NewPostgresProvider creates a PostgresProvider.
func NewPostgresProvider(pool db.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

// Name implements Provider.
func (p *PostgresProvider) Name() string { return "postgres" }

// Migrate creates the schema and table if missing.
func (p *PostgresProvider) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, PostgresMigration)
	return eris.Wrap(err, "gazetteer: migrate postgres")
}

// Lookup implements Provider.
func (p *PostgresProvider) Lookup(ctx context.Context, province, city string) (*Match, error) {
	norm := NormalizeName(city)
	if norm == "" {
		return nil, nil
	}

	var m Match
	err := p.pool.QueryRow(ctx, postgresLookup, province, norm).Scan(&m.Place, &m.Lat, &m.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: postgres lookup %s, %s", city, province)
	}
	m.Precision = PrecisionCity
	m.Source = p.Name()
	return &m, nil
}

// Import loads a GeoNames dump with COPY-staged upserts.
func (p *PostgresProvider) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	cfg := db.UpsertConfig{
		Table:        PlacesTable,
		Columns:      placeColumns,
		ConflictKeys: []string{"geoname_id", "name_norm"},
	}
	return readGeoNames(ctx, r, 10000, func(batch []Place) (int, error) {
		rows := make([][]any, len(batch))
		for i, pl := range batch {
			rows[i] = pl.values()
		}
		n, err := db.BulkUpsert(ctx, p.pool, cfg, rows)
		return int(n), err
	})
}

// Replace truncates the table and reloads it from a GeoNames dump with
// plain COPY, which is faster than Import for full refreshes.
func (p *PostgresProvider) Replace(ctx context.Context, r io.Reader) (*ImportStats, error) {
	if _, err := p.pool.Exec(ctx, `TRUNCATE gazetteer.places`); err != nil {
		return nil, eris.Wrap(err, "gazetteer: truncate places")
	}
	return readGeoNames(ctx, r, 10000, func(batch []Place) (int, error) {
		rows := make([][]any, len(batch))
		for i, pl := range batch {
			rows[i] = pl.values()
		}
		n, err := db.CopyRows(ctx, p.pool, PlacesTable, placeColumns, rows)
		return int(n), err
	})
}
