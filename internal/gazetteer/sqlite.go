package gazetteer

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	geoname_id   INTEGER NOT NULL,
	name         TEXT NOT NULL,
	name_norm    TEXT NOT NULL,
	province     TEXT NOT NULL,
	feature_code TEXT NOT NULL DEFAULT '',
	population   INTEGER NOT NULL DEFAULT 0,
	lat          REAL NOT NULL,
	lng          REAL NOT NULL,
	PRIMARY KEY (geoname_id, name_norm)
);

CREATE INDEX IF NOT EXISTS idx_places_lookup ON places(province, name_norm);
`

// SQLiteProvider looks up places in a local SQLite GeoNames table.
type SQLiteProvider struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the gazetteer database at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "gazetteer: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "gazetteer: migrate sqlite")
	}
	return &SQLiteProvider{db: db}, nil
}

// Close closes the database.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

// Name implements Provider.
func (p *SQLiteProvider) Name() string { return "sqlite" }

// Lookup implements Provider.
func (p *SQLiteProvider) Lookup(ctx context.Context, province, city string) (*Match, error) {
	norm := NormalizeName(city)
	if norm == "" {
		return nil, nil
	}

	var m Match
	err := p.db.QueryRowContext(ctx,
		`SELECT name, lat, lng FROM places WHERE province = ? AND name_norm = ? ORDER BY `+rankOrder+` LIMIT 1`,
		province, norm,
	).Scan(&m.Place, &m.Lat, &m.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: sqlite lookup %s, %s", city, province)
	}
	m.Precision = PrecisionCity
	m.Source = p.Name()
	return &m, nil
}

// Count returns the number of stored place rows.
func (p *SQLiteProvider) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "gazetteer: count places")
	}
	return n, nil
}

// Import loads a GeoNames dump, replacing rows with the same key.
func (p *SQLiteProvider) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	return readGeoNames(ctx, r, 5000, func(batch []Place) (int, error) {
		return p.insert(ctx, batch)
	})
}

func (p *SQLiteProvider) insert(ctx context.Context, batch []Place) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "gazetteer: begin import tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO places (geoname_id, name, name_norm, province, feature_code, population, lat, lng)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "gazetteer: prepare insert")
	}
	defer stmt.Close()

	for _, pl := range batch {
		if _, err := stmt.ExecContext(ctx, pl.values()...); err != nil {
			return 0, eris.Wrapf(err, "gazetteer: insert place %d", pl.GeonameID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "gazetteer: commit import tx")
	}
	return len(batch), nil
}
