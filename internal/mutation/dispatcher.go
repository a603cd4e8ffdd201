// Package mutation writes records described by schema documents: inserts,
// updates, deletes and pivot attach/detach. Every write runs in a transaction.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"crudschema/internal/access"
	"crudschema/internal/core/apperror"
	"crudschema/internal/core/tx"
	"crudschema/internal/infrastructure/storage/postgres"
	"crudschema/internal/relation"
	"crudschema/internal/schema"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// Store is the transactional database surface the dispatcher writes through.
type Store interface {
	tx.Manager
	GetQuerier(ctx context.Context) postgres.Querier
}

// Result is the user-facing outcome of a mutation.
type Result struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Model       string         `json:"model"`
	ID          any            `json:"id,omitempty"`
	Record      map[string]any `json:"record,omitempty"`
	// Count is the number of pivot rows changed by Attach or Detach.
	Count int64 `json:"count,omitempty"`
}

// Dispatcher executes mutations.
type Dispatcher struct {
	db        Store
	validator *Validator
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(db Store, validator *Validator) *Dispatcher {
	return &Dispatcher{db: db, validator: validator}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func identifiers(model string, names ...string) error {
	for _, n := range names {
		if !schema.IsIdentifier(n) {
			return apperror.NewSchemaInvalid(model, fmt.Sprintf("invalid identifier %q", n))
		}
	}
	return nil
}

// Find loads one record by primary key, projecting columns (all when empty).
func (d *Dispatcher) Find(ctx context.Context, fs *schema.FlatSchema, id any, columns []string) (map[string]any, error) {
	if err := identifiers(fs.Model, append([]string{fs.Table, fs.PrimaryKey}, columns...)...); err != nil {
		return nil, err
	}
	cols := columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	sql, args, err := builder().Select(cols...).From(fs.Table).
		Where(squirrel.Eq{fs.PrimaryKey: id}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var record map[string]any
	if err := pgxscan.Get(ctx, d.db.GetQuerier(ctx), &record, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(fs.Model, id)
		}
		return nil, apperror.NewQueryExecution(fs.Model, fs.Table, cols, err)
	}
	return redact(fs, record), nil
}

// Create inserts input into fs's table and returns the stored row.
func (d *Dispatcher) Create(ctx context.Context, fs *schema.FlatSchema, input map[string]any, caller access.PermissionSet) (*Result, error) {
	payload, err := d.validator.Prepare(fs, input, ModeCreate, caller)
	if err != nil {
		return nil, err
	}
	cols := payload.Columns()
	if err := identifiers(fs.Model, append([]string{fs.Table}, cols...)...); err != nil {
		return nil, err
	}

	var sql string
	var args []any
	if len(payload.Values) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", fs.Table)
	} else {
		sql, args, err = builder().Insert(fs.Table).SetMap(payload.Values).Suffix("RETURNING *").ToSql()
		if err != nil {
			return nil, fmt.Errorf("build insert: %w", err)
		}
	}

	var record map[string]any
	err = d.db.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := pgxscan.Get(ctx, d.db.GetQuerier(ctx), &record, sql, args...); err != nil {
			return writeError(fs, cols, nil, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	id := record[fs.PrimaryKey]
	return &Result{
		Title:       fmt.Sprintf("%s created", displayName(fs)),
		Description: fmt.Sprintf("Created %s #%v.", fs.Model, id),
		Model:       fs.Model,
		ID:          id,
		Record:      redact(fs, record),
	}, nil
}

// Update changes the writable fields present in input.
func (d *Dispatcher) Update(ctx context.Context, fs *schema.FlatSchema, id any, input map[string]any, caller access.PermissionSet) (*Result, error) {
	payload, err := d.validator.Prepare(fs, input, ModeUpdate, caller)
	if err != nil {
		return nil, err
	}
	if len(payload.Values) == 0 {
		return nil, apperror.NewValidation("nothing to update").
			WithDetail("model", fs.Model).
			WithDetail("stripped", payload.Stripped)
	}
	cols := payload.Columns()
	if err := identifiers(fs.Model, append([]string{fs.Table, fs.PrimaryKey}, cols...)...); err != nil {
		return nil, err
	}

	sql, args, err := builder().Update(fs.Table).SetMap(payload.Values).
		Where(squirrel.Eq{fs.PrimaryKey: id}).Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var record map[string]any
	err = d.db.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := pgxscan.Get(ctx, d.db.GetQuerier(ctx), &record, sql, args...); err != nil {
			if pgxscan.NotFound(err) {
				return apperror.NewNotFound(fs.Model, id)
			}
			return writeError(fs, cols, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:       fmt.Sprintf("%s updated", displayName(fs)),
		Description: fmt.Sprintf("Updated %s #%v.", fs.Model, id),
		Model:       fs.Model,
		ID:          id,
		Record:      redact(fs, record),
	}, nil
}

// Delete removes one record by primary key.
func (d *Dispatcher) Delete(ctx context.Context, fs *schema.FlatSchema, id any) (*Result, error) {
	if err := identifiers(fs.Model, fs.Table, fs.PrimaryKey); err != nil {
		return nil, err
	}
	sql, args, err := builder().Delete(fs.Table).Where(squirrel.Eq{fs.PrimaryKey: id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete: %w", err)
	}

	err = d.db.RunInTransaction(ctx, func(ctx context.Context) error {
		tag, err := d.db.GetQuerier(ctx).Exec(ctx, sql, args...)
		if err != nil {
			return writeError(fs, []string{fs.PrimaryKey}, id, err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewNotFound(fs.Model, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:       fmt.Sprintf("%s deleted", displayName(fs)),
		Description: fmt.Sprintf("Deleted %s #%v.", fs.Model, id),
		Model:       fs.Model,
		ID:          id,
	}, nil
}

// Attach links related ids to the plan's source through its pivot table.
// Existing links are left alone.
func (d *Dispatcher) Attach(ctx context.Context, rel *relation.Plan, ids []any) (*Result, error) {
	hop, err := pivotHop(rel, ids)
	if err != nil {
		return nil, err
	}

	var count int64
	err = d.db.RunInTransaction(ctx, func(ctx context.Context) error {
		q := d.db.GetQuerier(ctx)
		for _, related := range ids {
			sql, args, err := builder().Insert(hop.Table).
				Columns(hop.ForeignKey, hop.RelatedKey).
				Values(rel.SourceID, related).
				Suffix("ON CONFLICT DO NOTHING").ToSql()
			if err != nil {
				return fmt.Errorf("build attach: %w", err)
			}
			tag, err := q.Exec(ctx, sql, args...)
			if err != nil {
				return pivotError(rel, hop, err)
			}
			count += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:       fmt.Sprintf("%s attached", rel.Name),
		Description: fmt.Sprintf("Attached %d %s to %s #%v.", count, rel.Target.Model, rel.Source.Model, rel.SourceID),
		Model:       rel.Source.Model,
		ID:          rel.SourceID,
		Count:       count,
	}, nil
}

// Detach removes links between the plan's source and the related ids.
func (d *Dispatcher) Detach(ctx context.Context, rel *relation.Plan, ids []any) (*Result, error) {
	hop, err := pivotHop(rel, ids)
	if err != nil {
		return nil, err
	}
	sql, args, err := builder().Delete(hop.Table).
		Where(squirrel.Eq{hop.ForeignKey: rel.SourceID}).
		Where(squirrel.Eq{hop.RelatedKey: ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build detach: %w", err)
	}

	var count int64
	err = d.db.RunInTransaction(ctx, func(ctx context.Context) error {
		tag, err := d.db.GetQuerier(ctx).Exec(ctx, sql, args...)
		if err != nil {
			return pivotError(rel, hop, err)
		}
		count = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:       fmt.Sprintf("%s detached", rel.Name),
		Description: fmt.Sprintf("Detached %d %s from %s #%v.", count, rel.Target.Model, rel.Source.Model, rel.SourceID),
		Model:       rel.Source.Model,
		ID:          rel.SourceID,
		Count:       count,
	}, nil
}

func pivotHop(rel *relation.Plan, ids []any) (relation.Hop, error) {
	if rel.Kind != relation.KindPivot || len(rel.Pivots) != 1 {
		return relation.Hop{}, apperror.NewInvalidInput(
			fmt.Sprintf("relation '%s' on model '%s' is not a direct many-to-many relation", rel.Name, rel.Source.Model)).
			WithDetail("kind", rel.Kind.String())
	}
	if len(ids) == 0 {
		return relation.Hop{}, apperror.NewValidation("no ids given").WithDetail("relation", rel.Name)
	}
	hop := rel.Pivots[0]
	if err := identifiers(rel.Source.Model, hop.Table, hop.ForeignKey, hop.RelatedKey); err != nil {
		return relation.Hop{}, err
	}
	return hop, nil
}

func displayName(fs *schema.FlatSchema) string {
	if fs.Title != "" {
		return fs.Title
	}
	return fs.Model
}

// writeError maps constraint violations onto conflicts and everything else
// onto a query execution error.
func writeError(fs *schema.FlatSchema, cols []string, id any, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.NewConflict(fmt.Sprintf("A %s with the same %s already exists", fs.Model, constraintColumn(pgErr))).
				WithDetail("model", fs.Model).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgForeignKeyViolation:
			c := apperror.NewConflict(fmt.Sprintf("The %s record references or is referenced by other records", fs.Model)).
				WithDetail("model", fs.Model).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
			if id != nil {
				c.WithDetail("id", id)
			}
			return c
		}
	}
	return apperror.NewQueryExecution(fs.Model, fs.Table, cols, err)
}

func constraintColumn(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return "values"
}

func pivotError(rel *relation.Plan, hop relation.Hop, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return apperror.NewConflict(fmt.Sprintf("Cannot link %s: a referenced record does not exist", rel.Name)).
			WithDetail("table", hop.Table).
			WithCause(err)
	}
	return apperror.NewQueryExecution(rel.Source.Model, hop.Table, []string{hop.ForeignKey, hop.RelatedKey}, err)
}
