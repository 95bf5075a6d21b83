package sqlcgen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const listLostItemLinks = `-- name: ListLostItemLinks :many
SELECT id.itemid, id.parent_itemid, id.lastcheck, id.ts_delete
FROM item_discovery id
JOIN items i ON i.itemid = id.itemid
WHERE i.flags = 4
  AND id.parent_itemid IN (
    SELECT p.itemid FROM item_discovery p WHERE p.parent_itemid = $1
  )
  AND id.lastcheck < $2
ORDER BY id.itemid
`

const listLostTriggerLinks = `-- name: ListLostTriggerLinks :many
SELECT td.triggerid, td.parent_triggerid, td.lastcheck, td.ts_delete
FROM trigger_discovery td
WHERE td.parent_triggerid IN (
    SELECT f.triggerid
    FROM functions f
    JOIN item_discovery id ON id.itemid = f.itemid
    WHERE id.parent_itemid = $1
  )
  AND td.lastcheck < $2
ORDER BY td.triggerid
`

const listLostGraphLinks = `-- name: ListLostGraphLinks :many
SELECT gd.graphid, gd.parent_graphid, gd.lastcheck, gd.ts_delete
FROM graph_discovery gd
WHERE gd.parent_graphid IN (
    SELECT gi.graphid
    FROM graphs_items gi
    JOIN item_discovery id ON id.itemid = gi.itemid
    WHERE id.parent_itemid = $1
  )
  AND gd.lastcheck < $2
ORDER BY gd.graphid
`

// ListLostLinks returns the discovery links of entities of the given kind,
// created by prototypes of rule ruleID, that were not refreshed at lastcheck.
func (q *Queries) ListLostLinks(ctx context.Context, kind EntityKind, ruleID int64, lastcheck int64) ([]DiscoveryLink, error) {
	var sql string
	switch kind {
	case KindItem:
		sql = listLostItemLinks
	case KindTrigger:
		sql = listLostTriggerLinks
	case KindGraph:
		sql = listLostGraphLinks
	default:
		return nil, fmt.Errorf("list lost links: unknown kind %q", kind)
	}

	rows, err := q.db.Query(ctx, sql, ruleID, lastcheck)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []DiscoveryLink
	for rows.Next() {
		var i DiscoveryLink
		if err := rows.Scan(&i.EntityID, &i.ParentID, &i.Lastcheck, &i.TsDelete); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var scheduleDeletion = map[EntityKind]string{
	KindItem:    `UPDATE item_discovery SET ts_delete = $3 WHERE itemid = $1 AND parent_itemid = $2`,
	KindTrigger: `UPDATE trigger_discovery SET ts_delete = $3 WHERE triggerid = $1 AND parent_triggerid = $2`,
	KindGraph:   `UPDATE graph_discovery SET ts_delete = $3 WHERE graphid = $1 AND parent_graphid = $2`,
}

func (q *Queries) ScheduleDeletion(ctx context.Context, kind EntityKind, arg []DeletionSchedule) error {
	sql, ok := scheduleDeletion[kind]
	if !ok {
		return fmt.Errorf("schedule deletion: unknown kind %q", kind)
	}
	b := &pgx.Batch{}
	for _, s := range arg {
		b.Queue(sql, s.EntityID, s.ParentID, s.TsDelete)
	}
	return q.sendBatch(ctx, b)
}

const deleteTriggersOfItems = `-- name: DeleteTriggersOfItems :exec
DELETE FROM triggers
WHERE triggerid IN (
  SELECT f.triggerid FROM functions f WHERE f.itemid = ANY($1::bigint[])
)
`

const deleteItems = `-- name: DeleteItems :exec
DELETE FROM items
WHERE itemid = ANY($1::bigint[])
`

const deleteGraphsOnlyOfItems = `-- name: DeleteGraphsOnlyOfItems :exec
DELETE FROM graphs g
WHERE g.graphid IN (
  SELECT gi.graphid FROM graphs_items gi WHERE gi.itemid = ANY($1::bigint[])
)
AND NOT EXISTS (
  SELECT 1 FROM graphs_items gi
  WHERE gi.graphid = g.graphid AND gi.itemid <> ALL($1::bigint[])
)
`

// DeleteItems deletes items together with the triggers that reference them
// and the graphs that plot nothing but those items. Graphs that never had
// items are left alone.
func (q *Queries) DeleteItems(ctx context.Context, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	b.Queue(deleteTriggersOfItems, itemIDs)
	b.Queue(deleteGraphsOnlyOfItems, itemIDs)
	b.Queue(deleteItems, itemIDs)
	return q.sendBatch(ctx, b)
}

const deleteTriggers = `-- name: DeleteTriggers :exec
DELETE FROM triggers
WHERE triggerid = ANY($1::bigint[])
`

func (q *Queries) DeleteTriggers(ctx context.Context, triggerIDs []int64) error {
	if len(triggerIDs) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx, deleteTriggers, triggerIDs)
	return err
}

const deleteGraphs = `-- name: DeleteGraphs :exec
DELETE FROM graphs
WHERE graphid = ANY($1::bigint[])
`

func (q *Queries) DeleteGraphs(ctx context.Context, graphIDs []int64) error {
	if len(graphIDs) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx, deleteGraphs, graphIDs)
	return err
}
