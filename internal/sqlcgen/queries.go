package sqlcgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// ErrUniqueViolation is returned (wrapped) when a write collides with a unique
// constraint. The write is rolled back to the savepoint taken before it.
var ErrUniqueViolation = errors.New("unique constraint violation")

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}

// sendBatch executes every queued statement in one round trip inside a
// savepoint, so a failing statement leaves the surrounding transaction usable.
func (q *Queries) sendBatch(ctx context.Context, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, q.db, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, b)
		for i := 0; i < b.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	return mapError(err)
}

// Tables and id columns that may draw from the id generator.
var idFields = map[string]string{
	"items":              "itemid",
	"item_discovery":     "itemdiscoveryid",
	"items_applications": "itemappid",
	"triggers":           "triggerid",
	"trigger_discovery":  "triggerdiscoveryid",
	"functions":          "functionid",
	"graphs":             "graphid",
	"graph_discovery":    "graphdiscoveryid",
	"graphs_items":       "gitemid",
}

// ReserveIDs reserves count contiguous ids for table and returns the first one.
// The generator row is seeded from the table's current maximum id.
func (q *Queries) ReserveIDs(ctx context.Context, table string, count int) (int64, error) {
	field, ok := idFields[table]
	if !ok {
		return 0, fmt.Errorf("reserve ids: unknown table %q", table)
	}
	if count <= 0 {
		return 0, fmt.Errorf("reserve ids: invalid count %d", count)
	}

	// table and field come from idFields, never from input.
	sql := `INSERT INTO ids (table_name, field_name, nextid)
VALUES ($1, $2, (SELECT COALESCE(MAX(` + field + `), 0) FROM ` + table + `) + $3)
ON CONFLICT (table_name, field_name) DO UPDATE
SET nextid = ids.nextid + $3
RETURNING nextid`

	var next int64
	if err := q.db.QueryRow(ctx, sql, table, field, int64(count)).Scan(&next); err != nil {
		return 0, err
	}
	return next - int64(count) + 1, nil
}
