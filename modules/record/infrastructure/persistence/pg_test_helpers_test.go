package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubTx struct {
	execSQLs  []string
	execArgs  [][]any
	execTags  []string
	execErr   error
	execErrAt int

	querySQLs []string
	queryArgs [][]any
	queryRows [][]any
	queryErr  error

	rows   [][]any
	rowErr error

	committed bool
	commitErr error
}

func (t *stubTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}
func (t *stubTx) Rollback(context.Context) error { return nil }
func (t *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Conn() *pgx.Conn { return nil }

func (t *stubTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQLs = append(t.execSQLs, sql)
	t.execArgs = append(t.execArgs, args)
	n := len(t.execSQLs)
	if t.execErr != nil && n == t.execErrAt {
		return pgconn.CommandTag{}, t.execErr
	}
	if n-1 < len(t.execTags) {
		return pgconn.NewCommandTag(t.execTags[n-1]), nil
	}
	return pgconn.NewCommandTag("OK 1"), nil
}

func (t *stubTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.querySQLs = append(t.querySQLs, sql)
	t.queryArgs = append(t.queryArgs, args)
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	return &stubRows{rows: t.queryRows}, nil
}

func (t *stubTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.querySQLs = append(t.querySQLs, sql)
	t.queryArgs = append(t.queryArgs, args)
	if t.rowErr != nil {
		return stubRow{err: t.rowErr}
	}
	if len(t.rows) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	r := t.rows[0]
	t.rows = t.rows[1:]
	return stubRow{vals: r}
}

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.vals, dest)
}

type stubRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}
func (r *stubRows) Scan(dest ...any) error   { return scanInto(r.rows[r.idx-1], dest) }
func (r *stubRows) Values() ([]any, error)   { return r.rows[r.idx-1], nil }
func (r *stubRows) RawValues() [][]byte      { return nil }
func (r *stubRows) Conn() *pgx.Conn          { return nil }

func scanInto(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(vals), len(dest))
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *[]byte:
			switch v := vals[i].(type) {
			case []byte:
				*d = v
			case string:
				*d = []byte(v)
			default:
				return errors.New("scan: want bytes")
			}
		case *string:
			*d = vals[i].(string)
		case *int:
			*d = vals[i].(int)
		case *bool:
			*d = vals[i].(bool)
		default:
			return fmt.Errorf("scan: unsupported target %T", dest[i])
		}
	}
	return nil
}
