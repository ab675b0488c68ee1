//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package postgres implements the store backend on PostgreSQL using a
// pgx connection pool. Tables are bulk loaded with COPY.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/pgEdge/pgedge-retailkpi/internal/db"
	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline"
	"github.com/pgEdge/pgedge-retailkpi/internal/store"
	"github.com/pgEdge/pgedge-retailkpi/pkg/version"
)

// Name is the backend name used in configuration.
const Name = "postgres"

type driver struct{}

func (driver) Name() string { return Name }

func (driver) Description() string {
	return "PostgreSQL database (pgx connection pool, COPY loads)"
}

func (driver) Open(ctx context.Context, conn string) (store.Backend, error) {
	return Open(ctx, conn)
}

func init() {
	store.Register(driver{})
}

// Backend is a store backend on a PostgreSQL database.
type Backend struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to the database described by connString.
func Open(ctx context.Context, connString string) (*Backend, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool, now: time.Now}
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func sqlType(t store.ColumnType) string {
	switch t {
	case store.Integer:
		return "BIGINT"
	case store.Numeric:
		return "NUMERIC(14,4)"
	case store.Boolean:
		return "BOOLEAN"
	case store.Timestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// EnsureSchema creates all tables if they do not exist.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	for _, t := range store.Schema() {
		if _, err := b.pool.Exec(ctx, t.CreateSQL(sqlType)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	logging.Debug().Msg("Schema ready")
	return nil
}

// DropSchema drops all tables.
func (b *Backend) DropSchema(ctx context.Context) error {
	schema := store.Schema()
	names := make([]string, 0, len(schema))
	for i := len(schema) - 1; i >= 0; i-- {
		if schema[i].Name == db.MetadataTable {
			continue
		}
		names = append(names, schema[i].Name)
	}
	if _, err := b.pool.Exec(ctx, "DROP TABLE IF EXISTS "+strings.Join(names, ", ")+" CASCADE"); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	if err := db.DropMetadata(ctx, b.pool); err != nil {
		return fmt.Errorf("failed to drop metadata: %w", err)
	}
	return nil
}

// Seed replaces the input tables with ds.
func (b *Backend) Seed(ctx context.Context, ds *model.Dataset) error {
	return b.withTx(ctx, func(tx pgx.Tx) error {
		for _, tr := range store.InputRows(ds) {
			if err := replace(ctx, tx, tr); err != nil {
				return err
			}
		}
		return nil
	})
}

// Publish replaces the output tables with out and records the run in
// the same transaction.
func (b *Backend) Publish(ctx context.Context, out *pipeline.Output) error {
	err := b.withTx(ctx, func(tx pgx.Tx) error {
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
		kv := make(map[string]string)
		for _, row := range store.MetadataRows(meta) {
			kv[row[0].(string)] = row[1].(string)
		}
		return db.SaveMetadata(ctx, tx, kv)
	})
	if err != nil {
		return err
	}

	logging.Info().
		Str("run_id", out.RunID).
		Msg("Published run")
	return nil
}

// Load reads the input tables.
func (b *Backend) Load(ctx context.Context, f store.Filter) (*model.Dataset, error) {
	ds := &model.Dataset{}
	for _, name := range store.InputTables {
		t := store.MustLookup(name)
		where, args := store.FilterClause(name, f,
			func(n int) string { return fmt.Sprintf("$%d", n) },
			func(t time.Time) any { return t })
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

func (b *Backend) loadTable(ctx context.Context, ds *model.Dataset, t store.Table, query string, args []any) error {
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()

	dest := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Type {
		case store.Integer:
			dest[i] = new(pgtype.Int8)
		case store.Numeric:
			dest[i] = new(pgtype.Numeric)
		case store.Boolean:
			dest[i] = new(pgtype.Bool)
		case store.Timestamp:
			dest[i] = new(pgtype.Timestamptz)
		default:
			dest[i] = new(pgtype.Text)
		}
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan %s: %w", t.Name, err)
		}
		vals := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			v, err := decode(dest[i])
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
			vals[i] = v
		}
		if err := store.AppendRow(ds, t.Name, vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LastRun returns the metadata of the last published run.
func (b *Backend) LastRun(ctx context.Context) (store.RunMetadata, error) {
	kv, err := db.GetAllMetadata(ctx, b.pool)
	if err != nil {
		return store.RunMetadata{}, err
	}
	return store.ParseMetadata(kv)
}

func (b *Backend) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback(ctx))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// replace truncates the table and copies every row of tr into it.
func replace(ctx context.Context, tx pgx.Tx, tr store.TableRows) error {
	if _, err := tx.Exec(ctx, "TRUNCATE "+pgx.Identifier{tr.Table.Name}.Sanitize()); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", tr.Table.Name, err)
	}
	if len(tr.Rows) == 0 {
		return nil
	}

	rows := make([][]any, len(tr.Rows))
	for i, row := range tr.Rows {
		encoded := make([]any, len(row))
		for j, v := range row {
			encoded[j] = encode(v)
		}
		rows[i] = encoded
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{tr.Table.Name}, tr.Table.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy into %s: %w", tr.Table.Name, err)
	}

	logging.Debug().
		Str("table", tr.Table.Name).
		Int64("rows", n).
		Msg("Table replaced")
	return nil
}

func encode(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
	}
	return v
}

func decode(dest any) (any, error) {
	switch d := dest.(type) {
	case *pgtype.Text:
		if !d.Valid {
			return nil, nil
		}
		return d.String, nil
	case *pgtype.Int8:
		if !d.Valid {
			return nil, nil
		}
		return d.Int64, nil
	case *pgtype.Bool:
		if !d.Valid {
			return nil, nil
		}
		return d.Bool, nil
	case *pgtype.Timestamptz:
		if !d.Valid {
			return nil, nil
		}
		if d.InfinityModifier != pgtype.Finite {
			return nil, fmt.Errorf("infinite timestamp")
		}
		return d.Time.UTC(), nil
	case *pgtype.Numeric:
		if !d.Valid {
			return nil, nil
		}
		if d.NaN || d.InfinityModifier != pgtype.Finite {
			return nil, fmt.Errorf("non-finite numeric")
		}
		if d.Int == nil {
			return decimal.Zero, nil
		}
		return decimal.NewFromBigInt(d.Int, d.Exp), nil
	}
	return nil, fmt.Errorf("unsupported scan target %T", dest)
}
