package postgres_test

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool is a function-field stand-in for the pgx pool; each test wires
// exactly the calls it expects.
type fakePool struct {
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	execSQL  []string
	execArgs [][]any
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execFunc == nil {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return f.execFunc(ctx, sql, args...)
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.queryRowFunc(ctx, sql, args...)
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f.queryFunc(ctx, sql, args...)
}

// fakeRow copies canned values into scan destinations.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if r.vals[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		dv.Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}
