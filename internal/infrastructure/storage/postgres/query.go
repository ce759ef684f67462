package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockalloc/internal/domain"
)

// Get builds q and scans exactly one row into dst. A missing row is returned
// as is; check it with pgxscan.NotFound.
func Get(ctx context.Context, db Querier, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Get(ctx, db, dst, sql, args...)
}

// Select builds q and scans all rows into dst, a pointer to a slice.
func Select(ctx context.Context, db Querier, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, db, dst, sql, args...)
}

// Exec builds and executes q.
func Exec(ctx context.Context, db Querier, q squirrel.Sqlizer) (pgconn.CommandTag, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("build query: %w", err)
	}
	return db.Exec(ctx, sql, args...)
}

// List counts the rows matched by q, then reads one ordered page of them.
func List[T any](ctx context.Context, db Querier, q squirrel.SelectBuilder, page domain.Page, orderBy ...string) (domain.ListResult[T], error) {
	page = page.Normalize()

	var total int64
	countQ := Builder().Select("COUNT(*)").FromSelect(q, "sub")
	sql, args, err := countQ.ToSql()
	if err != nil {
		return domain.ListResult[T]{}, fmt.Errorf("build count query: %w", err)
	}
	if err := db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return domain.ListResult[T]{}, fmt.Errorf("count: %w", err)
	}

	q = q.OrderBy(orderBy...).Limit(uint64(page.Limit)).Offset(uint64(page.Offset))

	var items []T
	if err := Select(ctx, db, &items, q); err != nil {
		return domain.ListResult[T]{}, fmt.Errorf("list: %w", err)
	}
	return domain.NewListResult(items, total, page), nil
}

// Insert builds an INSERT of the given columns from the value's db tags.
func Insert(table string, columns []string, v any) squirrel.InsertBuilder {
	data := StructToMap(v)
	values := make([]any, len(columns))
	for i, col := range columns {
		values[i] = data[col]
	}
	return Builder().Insert(table).Columns(columns...).Values(values...)
}
