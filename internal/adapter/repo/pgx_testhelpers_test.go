package repo

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// rowOf scans values into dest positionally.
func rowOf(values ...any) simpleRow {
	return simpleRow{scan: func(dest ...any) error { return assign(dest, values) }}
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan column %d: %s into %s", i, v.Type(), target.Type())
		}
		target.Set(v)
	}
	return nil
}

type testRows struct {
	rows [][]any
	idx  int
}

func (r *testRows) Close()                                       {}
func (r *testRows) Err() error                                   { return nil }
func (r *testRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *testRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *testRows) Conn() *pgx.Conn                              { return nil }
func (r *testRows) RawValues() [][]byte                          { return nil }
func (r *testRows) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (r *testRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *testRows) Scan(dest ...any) error {
	return assign(dest, r.rows[r.idx-1])
}

type call struct {
	marker string
	args   []any
}

// fakeSQL answers queries by their marker id and records every call.
type fakeSQL struct {
	rows  map[string][]pgx.Row
	lists map[string][][]any
	calls []call
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{rows: map[string][]pgx.Row{}, lists: map[string][][]any{}}
}

func (f *fakeSQL) onRow(query string, row pgx.Row) {
	m := markerOf(query)
	f.rows[m] = append(f.rows[m], row)
}

func (f *fakeSQL) record(query string, args []any) string {
	m := markerOf(query)
	f.calls = append(f.calls, call{marker: m, args: args})
	return m
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.record(query, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	m := f.record(query, args)
	queue := f.rows[m]
	if len(queue) == 0 {
		return simpleRow{}
	}
	f.rows[m] = queue[1:]
	return queue[0]
}

// Query applies a trailing limit argument the way PostgreSQL does: NULL is
// unbounded and 0 returns no rows.
func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	m := f.record(query, args)
	rows := f.lists[m]
	if strings.Contains(query, "limit $") && len(args) > 0 {
		n := -1
		switch v := args[len(args)-1].(type) {
		case int:
			n = v
		case *int:
			if v != nil {
				n = *v
			}
		}
		if n >= 0 && n < len(rows) {
			rows = rows[:n]
		}
	}
	return &testRows{rows: rows}, nil
}

func markerOf(query string) string {
	first := strings.SplitN(strings.TrimSpace(query), "\n", 2)[0]
	return strings.TrimPrefix(first, "--sql ")
}
