//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package sqlite implements the store backend on an embedded SQLite
// database, for local runs and hermetic tests.
//
// Money is stored as TEXT to keep decimal values exact, and timestamps
// as fixed-width UTC TEXT so they compare correctly as strings.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline"
	"github.com/pgEdge/pgedge-retailkpi/internal/store"
	"github.com/pgEdge/pgedge-retailkpi/pkg/version"
)

// Name is the backend name used in configuration.
const Name = "sqlite"

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Layouts accepted when reading timestamps written by other tools.
var readLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type driver struct{}

func (driver) Name() string { return Name }

func (driver) Description() string {
	return "Embedded SQLite database file (modernc.org/sqlite)"
}

func (driver) Open(ctx context.Context, conn string) (store.Backend, error) {
	return Open(ctx, conn)
}

func init() {
	store.Register(driver{})
}

// Backend is a store backend on a SQLite database.
type Backend struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the SQLite database at path. ":memory:" gives a
// private in-memory database.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to configure sqlite: %w", err), db.Close())
	}

	logging.Debug().Str("path", path).Msg("Opened sqlite database")

	return &Backend{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func sqlType(t store.ColumnType) string {
	switch t {
	case store.Integer, store.Boolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// EnsureSchema creates all tables if they do not exist.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	for _, t := range store.Schema() {
		if _, err := b.db.ExecContext(ctx, t.CreateSQL(sqlType)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	logging.Debug().Str("path", b.path).Msg("Schema ready")
	return nil
}

// DropSchema drops all tables.
func (b *Backend) DropSchema(ctx context.Context) error {
	schema := store.Schema()
	for i := len(schema) - 1; i >= 0; i-- {
		if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema[i].Name); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", schema[i].Name, err)
		}
	}
	return nil
}

// Seed replaces the input tables with ds.
func (b *Backend) Seed(ctx context.Context, ds *model.Dataset) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		for _, tr := range store.InputRows(ds) {
			if err := replace(ctx, tx, tr); err != nil {
				return err
			}
		}
		return nil
	})
}

// Publish replaces the output tables with out and records the run.
func (b *Backend) Publish(ctx context.Context, out *pipeline.Output) error {
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		for _, tr := range store.OutputRows(out) {
			if err := replace(ctx, tx, tr); err != nil {
				return err
			}
		}
		meta := store.RunMetadata{
			RunID:             out.RunID,
			Version:           version.Short(),
			ParamsFingerprint: out.ParamsFingerprint,
			PublishedAt:       b.now(),
		}
		for _, kv := range store.MetadataRows(meta) {
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO kpi_metadata (key, value) VALUES (?, ?)
                ON CONFLICT (key) DO UPDATE SET value = excluded.value
            `, kv...); err != nil {
				return fmt.Errorf("failed to save metadata %s: %w", kv[0], err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Info().
		Str("run_id", out.RunID).
		Str("path", b.path).
		Msg("Published run")
	return nil
}

// Load reads the input tables.
func (b *Backend) Load(ctx context.Context, f store.Filter) (*model.Dataset, error) {
	ds := &model.Dataset{}
	for _, name := range store.InputTables {
		t := store.MustLookup(name)
		where, args := store.FilterClause(name, f, func(int) string { return "?" }, encodeTime)
		query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
			t.SelectList(), t.Name, where, strings.Join(t.PrimaryKey, ", "))

		if err := b.loadTable(ctx, ds, t, query, args); err != nil {
			return nil, err
		}
	}

	logging.Info().
		Int("orders", len(ds.Orders)).
		Int("items", len(ds.Items)).
		Int("payments", len(ds.Payments)).
		Msg("Loaded dataset")
	return ds, nil
}

func (b *Backend) loadTable(ctx context.Context, ds *model.Dataset, t store.Table, query string, args []any) (err error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()

	dest := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Type {
		case store.Integer, store.Boolean:
			dest[i] = new(sql.NullInt64)
		default:
			dest[i] = new(sql.NullString)
		}
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan %s: %w", t.Name, err)
		}
		vals := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			if vals[i], err = decode(c, dest[i]); err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
		}
		if err := store.AppendRow(ds, t.Name, vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LastRun returns the metadata of the last published run.
func (b *Backend) LastRun(ctx context.Context) (meta store.RunMetadata, err error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM kpi_metadata`)
	if err != nil {
		return store.RunMetadata{}, err
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()

	kv := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return store.RunMetadata{}, err
		}
		kv[key] = value
	}
	if err := rows.Err(); err != nil {
		return store.RunMetadata{}, err
	}
	return store.ParseMetadata(kv)
}

func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// replace empties the table and inserts every row of tr.
func replace(ctx context.Context, tx *sql.Tx, tr store.TableRows) (err error) {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+tr.Table.Name); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", tr.Table.Name, err)
	}
	if len(tr.Rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tr.Table.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tr.Table.Name, tr.Table.SelectList(), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", tr.Table.Name, err)
	}
	defer func() { err = multierr.Append(err, stmt.Close()) }()

	args := make([]any, len(tr.Table.Columns))
	for _, row := range tr.Rows {
		for i, v := range row {
			args[i] = encode(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", tr.Table.Name, err)
		}
	}

	logging.Debug().
		Str("table", tr.Table.Name).
		Int("rows", len(tr.Rows)).
		Msg("Table replaced")
	return nil
}

func encode(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return encodeTime(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func encodeTime(t time.Time) any {
	return t.UTC().Format(timeLayout)
}

func decode(c store.Column, dest any) (any, error) {
	switch d := dest.(type) {
	case *sql.NullInt64:
		if !d.Valid {
			return nil, nil
		}
		if c.Type == store.Boolean {
			return d.Int64 != 0, nil
		}
		return d.Int64, nil
	case *sql.NullString:
		if !d.Valid {
			return nil, nil
		}
		switch c.Type {
		case store.Numeric:
			v, err := decimal.NewFromString(d.String)
			if err != nil {
				return nil, fmt.Errorf("invalid numeric %q: %w", d.String, err)
			}
			return v, nil
		case store.Timestamp:
			return parseTime(d.String)
		default:
			return d.String, nil
		}
	}
	return nil, fmt.Errorf("unsupported scan target %T", dest)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range readLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
