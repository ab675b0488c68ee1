//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package store

import (
	"fmt"
	"strings"
)

// ColumnType is the logical type of a column. Backends map it to their
// own SQL types and driver values.
//
// Row values use one Go type per logical type: Text is string, Integer
// is int64, Numeric is decimal.Decimal, Boolean is bool and Timestamp is
// time.Time. A nil value is SQL NULL.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Numeric
	Boolean
	Timestamp
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Numeric:
		return "numeric"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table describes one table owned by the pipeline.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// ColumnNames returns the table's column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SelectList returns the comma separated column list.
func (t Table) SelectList() string {
	return strings.Join(t.ColumnNames(), ", ")
}

// CreateSQL renders a CREATE TABLE IF NOT EXISTS statement using typeName
// to map logical types to the backend's SQL types.
func (t Table) CreateSQL(typeName func(ColumnType) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "    %-24s %s", c.Name, typeName(c.Type))
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	if len(t.PrimaryKey) > 0 {
		fmt.Fprintf(&b, ",\n    PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", "))
	}
	b.WriteString("\n)")
	return b.String()
}

func col(name string, typ ColumnType) Column { return Column{Name: name, Type: typ} }

func nullable(name string, typ ColumnType) Column {
	return Column{Name: name, Type: typ, Nullable: true}
}

var tables = map[string]Table{
	TableCustomers: {
		Name: TableCustomers,
		Columns: []Column{
			col("customer_id", Text),
			col("customer_unique_id", Text),
			nullable("city", Text),
			nullable("state", Text),
		},
		PrimaryKey: []string{"customer_id"},
	},
	TableSellers: {
		Name: TableSellers,
		Columns: []Column{
			col("seller_id", Text),
			nullable("city", Text),
			nullable("state", Text),
		},
		PrimaryKey: []string{"seller_id"},
	},
	TableProducts: {
		Name: TableProducts,
		Columns: []Column{
			col("product_id", Text),
			nullable("category", Text),
		},
		PrimaryKey: []string{"product_id"},
	},
	TableOrders: {
		Name: TableOrders,
		Columns: []Column{
			col("order_id", Text),
			col("customer_id", Text),
			nullable("status", Text),
			col("purchased_at", Timestamp),
		},
		PrimaryKey: []string{"order_id"},
	},
	TableItems: {
		Name: TableItems,
		Columns: []Column{
			col("order_id", Text),
			col("line_no", Integer),
			col("product_id", Text),
			nullable("seller_id", Text),
			col("price", Numeric),
			col("freight", Numeric),
			col("shipping_limit_at", Timestamp),
		},
		PrimaryKey: []string{"order_id", "line_no"},
	},
	TablePayments: {
		Name: TablePayments,
		Columns: []Column{
			col("order_id", Text),
			col("sequential", Integer),
			nullable("payment_type", Text),
			col("installments", Integer),
			col("amount", Numeric),
		},
		PrimaryKey: []string{"order_id", "sequential"},
	},
	TableBaselines: {
		Name: TableBaselines,
		Columns: []Column{
			col("product_id", Text),
			col("period", Text),
			col("median_price", Numeric),
			col("sample_size", Integer),
		},
		PrimaryKey: []string{"product_id", "period"},
	},
	TableEnrichedItems: {
		Name: TableEnrichedItems,
		Columns: []Column{
			col("order_id", Text),
			col("line_no", Integer),
			col("product_id", Text),
			nullable("seller_id", Text),
			col("price", Numeric),
			col("freight", Numeric),
			col("shipping_limit_at", Timestamp),
			nullable("baseline_median", Numeric),
			nullable("baseline_n", Integer),
			col("is_discounted", Boolean),
			col("is_low_confidence", Boolean),
			col("is_trusted_discount", Boolean),
		},
		PrimaryKey: []string{"order_id", "line_no"},
	},
	TableOrderKPIs: {
		Name: TableOrderKPIs,
		Columns: []Column{
			col("order_id", Text),
			col("customer_id", Text),
			col("purchased_at", Timestamp),
			col("items_revenue", Numeric),
			col("freight_total", Numeric),
			col("payment_value", Numeric),
			col("margin_proxy", Numeric),
			col("any_discount", Boolean),
			col("any_trusted_discount", Boolean),
			col("free_shipping", Boolean),
			col("is_clean", Boolean),
		},
		PrimaryKey: []string{"order_id"},
	},
	TableExclusions: {
		Name: TableExclusions,
		Columns: []Column{
			col("order_id", Text),
			col("reason", Text),
		},
		PrimaryKey: []string{"order_id", "reason"},
	},
	TableMonthly: {
		Name: TableMonthly,
		Columns: []Column{
			col("period", Text),
			col("orders", Integer),
			col("revenue", Numeric),
			col("freight", Numeric),
			col("payment", Numeric),
			col("margin", Numeric),
			col("aov", Numeric),
			col("margin_per_order", Numeric),
		},
		PrimaryKey: []string{"period"},
	},
	TablePromo: {
		Name: TablePromo,
		Columns: []Column{
			col("period", Text),
			col("trusted_discount", Boolean),
			col("orders", Integer),
			col("revenue", Numeric),
			col("margin", Numeric),
			col("share", Numeric),
		},
		PrimaryKey: []string{"period", "trusted_discount"},
	},
	TableCategoryRollup: {
		Name:       TableCategoryRollup,
		Columns:    rollupColumns(false),
		PrimaryKey: []string{"category"},
	},
	TableSKURollup: {
		Name:       TableSKURollup,
		Columns:    rollupColumns(true),
		PrimaryKey: []string{"product_id"},
	},
	TableCohorts: {
		Name: TableCohorts,
		Columns: []Column{
			col("customer_unique_id", Text),
			col("order_id", Text),
			col("cohort_period", Text),
			col("order_month", Text),
			col("month_offset", Integer),
			col("revenue", Numeric),
			col("margin_proxy", Numeric),
		},
		PrimaryKey: []string{"order_id"},
	},
	TableRetention: {
		Name: TableRetention,
		Columns: []Column{
			col("cohort_period", Text),
			col("month_offset", Integer),
			col("cohort_size", Integer),
			col("active_customers", Integer),
			col("retention_pct", Numeric),
			col("revenue", Numeric),
			col("margin_proxy", Numeric),
		},
		PrimaryKey: []string{"cohort_period", "month_offset"},
	},
	TableMetadata: {
		Name: TableMetadata,
		Columns: []Column{
			col("key", Text),
			col("value", Text),
		},
		PrimaryKey: []string{"key"},
	},
}

func rollupColumns(sku bool) []Column {
	var cols []Column
	if sku {
		cols = append(cols, col("product_id", Text))
	}
	return append(cols,
		col("category", Text),
		col("line_count", Integer),
		col("orders", Integer),
		col("revenue", Numeric),
		col("freight", Numeric),
		col("avg_price", Numeric),
		col("discounted_lines", Integer),
		col("trusted_discount_lines", Integer),
		col("trusted_discount_share", Numeric),
	)
}

// Lookup returns the definition of the named table.
func Lookup(name string) (Table, error) {
	t, ok := tables[name]
	if !ok {
		return Table{}, fmt.Errorf("unknown table: %s", name)
	}
	return t, nil
}

// MustLookup is Lookup for table names known at compile time.
func MustLookup(name string) Table {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Schema returns every table in creation order: inputs, outputs, metadata.
func Schema() []Table {
	out := make([]Table, 0, len(tables))
	for _, name := range InputTables {
		out = append(out, tables[name])
	}
	for _, name := range OutputTables {
		out = append(out, tables[name])
	}
	return append(out, tables[TableMetadata])
}
