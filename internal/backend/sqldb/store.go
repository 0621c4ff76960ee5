// Package sqldb is a database/sql store for PostgreSQL and MySQL.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"batchloader/internal/lookup"
	"batchloader/internal/schema"
)

// Dialect captures the syntax differences between drivers
type Dialect struct {
	Name        string
	quote       func(ident string) string
	placeholder func(n int) string

	// offsetNeedsLimit is set for dialects that reject OFFSET without LIMIT
	offsetNeedsLimit bool
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		quote:       func(ident string) string { return `"` + ident + `"` },
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
	MySQL = Dialect{
		Name:             "mysql",
		quote:            func(ident string) string { return "`" + ident + "`" },
		placeholder:      func(int) string { return "?" },
		offsetNeedsLimit: true,
	}
)

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver '%s'", driver)
	}
}

// Store runs lookups against a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	return New(db, dialect), nil
}

// New wraps an open database handle
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
	}
}

// SelectIn implements backend.Store
func (s *Store) SelectIn(ctx context.Context, ent *schema.Entity, field string, keys []any, fields []string) ([]lookup.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query, args := buildSelectIn(s.dialect, ent.Table, field, keys, fields)
	return s.query(ctx, query, args)
}

// SelectWhere implements backend.Store
func (s *Store) SelectWhere(ctx context.Context, ent *schema.Entity, q lookup.RangeQuery, fields []string) ([]lookup.Record, error) {
	query, args, err := buildSelectWhere(s.dialect, ent.Table, q, fields)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args)
}

// Close implements backend.Store
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, query string, args []any) ([]lookup.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []lookup.Record
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := make(lookup.Record, len(columns))
		for i, col := range columns {
			rec[col] = convertValue(vals[i], types[i].DatabaseTypeName())
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// convertValue turns driver byte slices into strings, or into int64 for
// integer columns so keys read back compare equal to request keys
func convertValue(v any, typeName string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(typeName) {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT",
		"UNSIGNED INT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
	}
	return string(b)
}

// buildSelectIn renders SELECT cols FROM table WHERE field IN (...)
func buildSelectIn(d Dialect, table, field string, keys []any, fields []string) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columnList(d, fields))
	sb.WriteString(" FROM ")
	sb.WriteString(d.quote(table))
	sb.WriteString(" WHERE ")
	sb.WriteString(d.quote(field))
	sb.WriteString(" IN (")

	args := make([]any, len(keys))
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.placeholder(i + 1))
		args[i] = key
	}
	sb.WriteString(")")

	return sb.String(), args
}

// buildSelectWhere renders an equality-filtered, ordered and paginated SELECT
func buildSelectWhere(d Dialect, table string, q lookup.RangeQuery, fields []string) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columnList(d, fields))
	sb.WriteString(" FROM ")
	sb.WriteString(d.quote(table))

	filterFields := make([]string, 0, len(q.Where))
	for f := range q.Where {
		filterFields = append(filterFields, f)
	}
	sort.Strings(filterFields)

	args := make([]any, 0, len(filterFields))
	for i, f := range filterFields {
		v, err := lookup.NormalizeKey(q.Where[f])
		if err != nil {
			return "", nil, fmt.Errorf("where.%s: %w", f, err)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, v)
		sb.WriteString(d.quote(f))
		sb.WriteString(" = ")
		sb.WriteString(d.placeholder(len(args)))
	}

	for i, o := range q.OrderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(d.quote(o.Field))
		if o.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	switch {
	case q.Take > 0:
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Take))
	case q.Skip > 0 && d.offsetNeedsLimit:
		sb.WriteString(" LIMIT 18446744073709551615")
	}
	if q.Skip > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(q.Skip))
	}

	return sb.String(), args, nil
}

func columnList(d Dialect, fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = d.quote(f)
	}
	return strings.Join(quoted, ", ")
}
