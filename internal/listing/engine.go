// Package listing executes query plans and returns a page of rows with counts.
package listing

import (
	"context"
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"crudschema/internal/core/apperror"
	"crudschema/internal/infrastructure/storage/postgres"
	"crudschema/internal/query"
)

var tracer = otel.Tracer("crudschema/listing")

// QuerierSource hands out the querier for a context.
type QuerierSource interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// Page is one page of a listing.
type Page struct {
	Rows          []map[string]any `json:"rows"`
	Count         int64            `json:"count"`
	CountFiltered int64            `json:"count_filtered"`
}

// Engine runs listing plans.
type Engine struct {
	db QuerierSource
}

// NewEngine creates a listing engine.
func NewEngine(db QuerierSource) *Engine {
	return &Engine{db: db}
}

// Execute runs the total count, the filtered count and the page query.
// Without a search term the filtered count equals the total and is not queried.
func (e *Engine) Execute(ctx context.Context, plan *query.Plan) (*Page, error) {
	ctx, span := tracer.Start(ctx, "listing.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("listing.model", plan.Model),
		attribute.String("listing.table", plan.BaseTable),
		attribute.String("listing.relation", plan.Relation.String()),
	)

	page, err := e.execute(ctx, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing failed")
		return nil, err
	}
	return page, nil
}

func (e *Engine) execute(ctx context.Context, plan *query.Plan) (*Page, error) {
	q := e.db.GetQuerier(ctx)
	page := &Page{Rows: []map[string]any{}}

	totalSQL, totalArgs, err := plan.TotalSQL()
	if err != nil {
		return nil, err
	}
	if err := q.QueryRow(ctx, totalSQL, totalArgs...).Scan(&page.Count); err != nil {
		return nil, queryError(plan, err)
	}

	page.CountFiltered = page.Count
	if plan.Search != nil {
		countSQL, countArgs, err := plan.CountSQL()
		if err != nil {
			return nil, err
		}
		if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&page.CountFiltered); err != nil {
			return nil, queryError(plan, err)
		}
	}

	sql, args, err := plan.SelectSQL()
	if err != nil {
		return nil, err
	}
	if err := pgxscan.Select(ctx, q, &page.Rows, sql, args...); err != nil {
		return nil, queryError(plan, err)
	}
	if page.Rows == nil {
		page.Rows = []map[string]any{}
	}
	return page, nil
}

// queryError attaches the model, table and columns to a driver failure.
func queryError(plan *query.Plan, err error) error {
	appErr := apperror.NewQueryExecution(plan.Model, plan.BaseTable, plan.Projection, err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		appErr.WithDetail("sqlstate", pgErr.Code)
		if pgErr.ColumnName != "" {
			appErr.WithDetail("column", pgErr.ColumnName)
		}
		if pgErr.TableName != "" {
			appErr.WithDetail("pg_table", pgErr.TableName)
		}
	}
	return appErr
}
