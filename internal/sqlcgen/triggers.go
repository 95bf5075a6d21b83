package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func scanTriggers(rows pgx.Rows) ([]Trigger, error) {
	defer rows.Close()

	var items []Trigger
	for rows.Next() {
		var i Trigger
		if err := rows.Scan(
			&i.TriggerID,
			&i.Description,
			&i.Expression,
			&i.URL,
			&i.Comments,
			&i.Status,
			&i.Priority,
			&i.Type,
			&i.Flags,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTriggerPrototypes = `-- name: ListTriggerPrototypes :many
SELECT DISTINCT t.triggerid,
       t.description,
       t.expression,
       t.url,
       t.comments,
       t.status,
       t.priority,
       t.type,
       t.flags
FROM triggers t
JOIN functions f ON f.triggerid = t.triggerid
JOIN item_discovery id ON id.itemid = f.itemid
WHERE id.parent_itemid = $1
  AND t.flags = 2
ORDER BY t.triggerid
`

func (q *Queries) ListTriggerPrototypes(ctx context.Context, ruleID int64) ([]Trigger, error) {
	rows, err := q.db.Query(ctx, listTriggerPrototypes, ruleID)
	if err != nil {
		return nil, err
	}
	return scanTriggers(rows)
}

const listHostTriggersByDescription = `-- name: ListHostTriggersByDescription :many
SELECT DISTINCT t.triggerid,
       t.description,
       t.expression,
       t.url,
       t.comments,
       t.status,
       t.priority,
       t.type,
       t.flags
FROM triggers t
JOIN functions f ON f.triggerid = t.triggerid
JOIN items i ON i.itemid = f.itemid
WHERE i.hostid = $1
  AND t.description = $2
  AND t.flags <> 2
ORDER BY t.triggerid
`

func (q *Queries) ListHostTriggersByDescription(ctx context.Context, hostID int64, description string) ([]Trigger, error) {
	rows, err := q.db.Query(ctx, listHostTriggersByDescription, hostID, description)
	if err != nil {
		return nil, err
	}
	return scanTriggers(rows)
}

const listFunctions = `-- name: ListFunctions :many
SELECT f.functionid,
       f.triggerid,
       f.itemid,
       h.host,
       i.key_,
       i.flags,
       f.function,
       f.parameter
FROM functions f
JOIN items i ON i.itemid = f.itemid
JOIN hosts h ON h.hostid = i.hostid
WHERE f.triggerid = ANY($1::bigint[])
ORDER BY f.triggerid, f.functionid
`

func (q *Queries) ListFunctions(ctx context.Context, triggerIDs []int64) ([]Function, error) {
	rows, err := q.db.Query(ctx, listFunctions, triggerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Function
	for rows.Next() {
		var i Function
		if err := rows.Scan(
			&i.FunctionID,
			&i.TriggerID,
			&i.ItemID,
			&i.Host,
			&i.Key,
			&i.ItemFlags,
			&i.Function,
			&i.Parameter,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTriggerLinks = `-- name: ListTriggerLinks :many
SELECT t.triggerid, td.name, t.description, t.expression
FROM triggers t
JOIN trigger_discovery td ON td.triggerid = t.triggerid
WHERE td.parent_triggerid = $1
ORDER BY t.triggerid
`

func (q *Queries) ListTriggerLinks(ctx context.Context, prototypeID int64) ([]TriggerLink, error) {
	rows, err := q.db.Query(ctx, listTriggerLinks, prototypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TriggerLink
	for rows.Next() {
		var i TriggerLink
		if err := rows.Scan(&i.TriggerID, &i.StoredDescription, &i.Description, &i.Expression); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertTrigger = `-- name: InsertTrigger :exec
INSERT INTO triggers (triggerid, description, expression, url, comments, status, priority, type, flags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const updateTrigger = `-- name: UpdateTrigger :exec
UPDATE triggers
SET description = $2,
    expression = $3,
    url = $4,
    comments = $5,
    priority = $6,
    type = $7
WHERE triggerid = $1
`

const deleteTriggerFunctions = `-- name: DeleteTriggerFunctions :exec
DELETE FROM functions
WHERE triggerid = ANY($1::bigint[])
`

const insertFunction = `-- name: InsertFunction :exec
INSERT INTO functions (functionid, itemid, triggerid, function, parameter)
VALUES ($1, $2, $3, $4, $5)
`

const insertTriggerDiscovery = `-- name: InsertTriggerDiscovery :exec
INSERT INTO trigger_discovery (triggerdiscoveryid, triggerid, parent_triggerid, name, lastcheck, ts_delete)
VALUES ($1, $2, $3, $4, $5, 0)
`

const refreshTriggerDiscovery = `-- name: RefreshTriggerDiscovery :exec
UPDATE trigger_discovery
SET name = $3,
    lastcheck = $4,
    ts_delete = 0
WHERE triggerid = $1
  AND parent_triggerid = $2
`

// SaveTriggersParams is one prototype's worth of trigger writes. Functions of
// updated triggers are replaced wholesale.
type SaveTriggersParams struct {
	Inserts        []Trigger
	Updates        []Trigger
	ReplacedOf     []int64
	NewFunctions   []Function
	NewLinks       []TriggerDiscovery
	RefreshedLinks []TriggerDiscovery
}

func (q *Queries) SaveTriggers(ctx context.Context, arg SaveTriggersParams) error {
	b := &pgx.Batch{}
	for _, t := range arg.Inserts {
		b.Queue(insertTrigger, t.TriggerID, t.Description, t.Expression, t.URL, t.Comments, t.Status, t.Priority, t.Type, t.Flags)
	}
	if len(arg.ReplacedOf) > 0 {
		b.Queue(deleteTriggerFunctions, arg.ReplacedOf)
	}
	for _, t := range arg.Updates {
		b.Queue(updateTrigger, t.TriggerID, t.Description, t.Expression, t.URL, t.Comments, t.Priority, t.Type)
	}
	for _, f := range arg.NewFunctions {
		b.Queue(insertFunction, f.FunctionID, f.ItemID, f.TriggerID, f.Function, f.Parameter)
	}
	for _, l := range arg.NewLinks {
		b.Queue(insertTriggerDiscovery, l.TriggerDiscoveryID, l.TriggerID, l.ParentTriggerID, l.Name, l.Lastcheck)
	}
	for _, l := range arg.RefreshedLinks {
		b.Queue(refreshTriggerDiscovery, l.TriggerID, l.ParentTriggerID, l.Name, l.Lastcheck)
	}
	return q.sendBatch(ctx, b)
}
