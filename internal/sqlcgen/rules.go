package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const getDiscoveryRule = `-- name: GetDiscoveryRule :one
SELECT i.itemid,
       i.hostid,
       h.host,
       i.key_,
       i.status,
       i.filter,
       i.lifetime,
       i.error
FROM items i
JOIN hosts h ON h.hostid = i.hostid
WHERE i.itemid = $1
  AND i.flags = 1
`

func (q *Queries) GetDiscoveryRule(ctx context.Context, itemID int64) (DiscoveryRule, error) {
	return scanDiscoveryRule(q.db.QueryRow(ctx, getDiscoveryRule, itemID))
}

const lockDiscoveryRule = `-- name: LockDiscoveryRule :one
SELECT i.itemid,
       i.hostid,
       h.host,
       i.key_,
       i.status,
       i.filter,
       i.lifetime,
       i.error
FROM items i
JOIN hosts h ON h.hostid = i.hostid
WHERE i.itemid = $1
  AND i.flags = 1
FOR UPDATE OF i
`

// LockDiscoveryRule reads the rule and holds its row lock until the
// transaction ends, so runs of one rule never overlap.
func (q *Queries) LockDiscoveryRule(ctx context.Context, itemID int64) (DiscoveryRule, error) {
	return scanDiscoveryRule(q.db.QueryRow(ctx, lockDiscoveryRule, itemID))
}

func scanDiscoveryRule(row pgx.Row) (DiscoveryRule, error) {
	var i DiscoveryRule
	err := row.Scan(&i.ItemID, &i.HostID, &i.Host, &i.Key, &i.Status, &i.Filter, &i.Lifetime, &i.Error)
	return i, err
}

const updateDiscoveryRuleState = `-- name: UpdateDiscoveryRuleState :exec
UPDATE items
SET status = $2,
    error = $3
WHERE itemid = $1
`

type UpdateDiscoveryRuleStateParams struct {
	ItemID int64
	Status int16
	Error  string
}

func (q *Queries) UpdateDiscoveryRuleState(ctx context.Context, arg UpdateDiscoveryRuleStateParams) error {
	_, err := q.db.Exec(ctx, updateDiscoveryRuleState, arg.ItemID, arg.Status, arg.Error)
	return err
}

const listRegexpExpressions = `-- name: ListRegexpExpressions :many
SELECT r.name,
       e.expression,
       e.expression_type,
       e.exp_delimiter,
       e.case_sensitive <> 0
FROM regexps r
JOIN expressions e ON e.regexpid = r.regexpid
WHERE r.name = $1
ORDER BY e.expressionid
`

func (q *Queries) ListRegexpExpressions(ctx context.Context, name string) ([]RegexpExpression, error) {
	rows, err := q.db.Query(ctx, listRegexpExpressions, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RegexpExpression
	for rows.Next() {
		var i RegexpExpression
		if err := rows.Scan(&i.Name, &i.Expression, &i.ExpressionType, &i.Delimiter, &i.CaseSensitive); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listUserMacros = `-- name: ListUserMacros :many
SELECT hostid, macro, value
FROM hostmacro
WHERE hostid = $1
UNION ALL
SELECT NULL::bigint, macro, value
FROM globalmacro
`

func (q *Queries) ListUserMacros(ctx context.Context, hostID int64) ([]UserMacro, error) {
	rows, err := q.db.Query(ctx, listUserMacros, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []UserMacro
	for rows.Next() {
		var i UserMacro
		if err := rows.Scan(&i.HostID, &i.Macro, &i.Value); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const findItemIDByKey = `-- name: FindItemIDByKey :one
SELECT itemid
FROM items
WHERE hostid = $1
  AND key_ = $2
`

func (q *Queries) FindItemIDByKey(ctx context.Context, hostID int64, key string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, findItemIDByKey, hostID, key).Scan(&id)
	return id, err
}

const listItemsByID = `-- name: ListItemsByID :many
SELECT itemid, key_, flags
FROM items
WHERE itemid = ANY($1::bigint[])
ORDER BY itemid
`

func (q *Queries) ListItemsByID(ctx context.Context, itemIDs []int64) ([]ItemRef, error) {
	rows, err := q.db.Query(ctx, listItemsByID, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemRef
	for rows.Next() {
		var i ItemRef
		if err := rows.Scan(&i.ItemID, &i.Key, &i.Flags); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
