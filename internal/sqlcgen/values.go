package sqlcgen

import (
	"context"
)

const claimNextLLDValue = `-- name: ClaimNextLLDValue :one
UPDATE lld_values
SET status = 'running'
WHERE id = (
  SELECT id
  FROM lld_values
  WHERE status = 'queued'
  ORDER BY queued_at ASC, clock ASC
  FOR UPDATE SKIP LOCKED
  LIMIT 1
)
RETURNING id::text, itemid, value, clock, ns, status, last_error, queued_at
`

func (q *Queries) ClaimNextLLDValue(ctx context.Context) (LLDValue, error) {
	row := q.db.QueryRow(ctx, claimNextLLDValue)
	var i LLDValue
	err := row.Scan(&i.ID, &i.ItemID, &i.Value, &i.Clock, &i.NS, &i.Status, &i.LastError, &i.QueuedAt)
	return i, err
}

const completeLLDValue = `-- name: CompleteLLDValue :exec
UPDATE lld_values
SET status = $2,
    last_error = $3,
    processed_at = now()
WHERE id = $1::uuid
`

type CompleteLLDValueParams struct {
	ID        string
	Status    string
	LastError *string
}

func (q *Queries) CompleteLLDValue(ctx context.Context, arg CompleteLLDValueParams) error {
	_, err := q.db.Exec(ctx, completeLLDValue, arg.ID, arg.Status, arg.LastError)
	return err
}

const insertLLDValue = `-- name: InsertLLDValue :one
INSERT INTO lld_values (itemid, value, clock, ns)
VALUES ($1, $2, $3, $4)
RETURNING id::text, itemid, value, clock, ns, status, last_error, queued_at
`

type InsertLLDValueParams struct {
	ItemID int64
	Value  string
	Clock  int64
	NS     int32
}

func (q *Queries) InsertLLDValue(ctx context.Context, arg InsertLLDValueParams) (LLDValue, error) {
	row := q.db.QueryRow(ctx, insertLLDValue, arg.ItemID, arg.Value, arg.Clock, arg.NS)
	var i LLDValue
	err := row.Scan(&i.ID, &i.ItemID, &i.Value, &i.Clock, &i.NS, &i.Status, &i.LastError, &i.QueuedAt)
	return i, err
}
