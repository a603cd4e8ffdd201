// Package pgfake is an in-memory stand-in for the postgres Querier and
// transaction manager. It answers statements from canned results and records
// every call.
package pgfake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"crudschema/internal/infrastructure/storage/postgres"
)

// Result is the canned answer to a statement.
type Result struct {
	Columns []string
	Rows    [][]any
	// Tag is the command tag returned by Exec, e.g. "INSERT 0 1".
	Tag string
	Err error
}

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
	InTx bool
}

type handler struct {
	match  string
	result Result
	once   bool
	used   bool
}

// DB implements postgres.Querier and tx.Manager.
type DB struct {
	mu       sync.Mutex
	handlers []*handler
	calls    []Call
	inTx     bool

	Commits   int
	Rollbacks int
}

// New creates an empty fake.
func New() *DB { return &DB{} }

// On answers every statement containing match with r. Handlers are tried in
// registration order.
func (d *DB) On(match string, r Result) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, &handler{match: match, result: r})
	return d
}

// Once answers the first statement containing match with r.
func (d *DB) Once(match string, r Result) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, &handler{match: match, result: r, once: true})
	return d
}

// Calls returns the recorded statements.
func (d *DB) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// SQL returns the recorded statement texts.
func (d *DB) SQL() []string {
	var out []string
	for _, c := range d.Calls() {
		out = append(out, c.SQL)
	}
	return out
}

func (d *DB) answer(sql string, args []any) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{SQL: sql, Args: args, InTx: d.inTx})
	for _, h := range d.handlers {
		if h.once && h.used {
			continue
		}
		if strings.Contains(sql, h.match) {
			h.used = true
			return h.result
		}
	}
	return Result{Err: fmt.Errorf("pgfake: no result registered for %q", sql)}
}

// GetQuerier implements the querier source used by the listing engine and
// the mutation dispatcher.
func (d *DB) GetQuerier(context.Context) postgres.Querier { return d }

// RunInTransaction runs fn, counting commits and rollbacks.
func (d *DB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	nested := d.inTx
	d.inTx = true
	d.mu.Unlock()
	if nested {
		return fn(ctx)
	}

	err := fn(ctx)

	d.mu.Lock()
	d.inTx = false
	if err != nil {
		d.Rollbacks++
	} else {
		d.Commits++
	}
	d.mu.Unlock()
	return err
}

func (d *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := d.answer(sql, args)
	return pgconn.NewCommandTag(r.Tag), r.Err
}

func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := d.answer(sql, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return &rows{result: r, pos: -1}, nil
}

func (d *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r := d.answer(sql, args)
	return &row{result: r}
}

type rows struct {
	result Result
	pos    int
	closed bool
	err    error
}

func (r *rows) Close()                        { r.closed = true }
func (r *rows) Err() error                    { return r.err }
func (r *rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag(r.result.Tag) }
func (r *rows) Conn() *pgx.Conn               { return nil }

func (r *rows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.result.Columns))
	for i, c := range r.result.Columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.result.Rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.result.Rows) {
		return errors.New("pgfake: scan outside of a row")
	}
	return assign(r.result.Rows[r.pos], dest)
}

func (r *rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.result.Rows) {
		return nil, errors.New("pgfake: values outside of a row")
	}
	return append([]any(nil), r.result.Rows[r.pos]...), nil
}

func (r *rows) RawValues() [][]byte { return nil }

type row struct {
	result Result
}

func (r *row) Scan(dest ...any) error {
	if r.result.Err != nil {
		return r.result.Err
	}
	if len(r.result.Rows) == 0 {
		return pgx.ErrNoRows
	}
	return assign(r.result.Rows[0], dest)
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("pgfake: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("pgfake: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if v == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		val := reflect.ValueOf(v)
		switch {
		case val.Type().AssignableTo(elem.Type()):
			elem.Set(val)
		case val.Type().ConvertibleTo(elem.Type()):
			elem.Set(val.Convert(elem.Type()))
		default:
			return fmt.Errorf("pgfake: cannot assign %T to %s", v, elem.Type())
		}
	}
	return nil
}
