package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const itemColumns = `i.itemid,
       i.hostid,
       i.name,
       i.key_,
       i.type,
       i.value_type,
       i.delay,
       i.history,
       i.trends,
       i.status,
       i.units,
       i.params,
       i.snmp_oid,
       i.ipmi_sensor,
       i.description,
       i.flags`

const listItemPrototypes = `-- name: ListItemPrototypes :many
SELECT ` + itemColumns + `
FROM items i
JOIN item_discovery id ON id.itemid = i.itemid
WHERE id.parent_itemid = $1
  AND i.flags = 2
ORDER BY i.itemid
`

func (q *Queries) ListItemPrototypes(ctx context.Context, ruleID int64) ([]Item, error) {
	rows, err := q.db.Query(ctx, listItemPrototypes, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var i Item
		if err := rows.Scan(
			&i.ItemID,
			&i.HostID,
			&i.Name,
			&i.Key,
			&i.Type,
			&i.ValueType,
			&i.Delay,
			&i.History,
			&i.Trends,
			&i.Status,
			&i.Units,
			&i.Params,
			&i.SNMPOID,
			&i.IPMISensor,
			&i.Description,
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

const listItemLinks = `-- name: ListItemLinks :many
SELECT i.itemid, id.key_, i.key_
FROM items i
JOIN item_discovery id ON id.itemid = i.itemid
WHERE id.parent_itemid = $1
ORDER BY i.itemid
`

func (q *Queries) ListItemLinks(ctx context.Context, prototypeID int64) ([]ItemLink, error) {
	rows, err := q.db.Query(ctx, listItemLinks, prototypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemLink
	for rows.Next() {
		var i ItemLink
		if err := rows.Scan(&i.ItemID, &i.StoredKey, &i.Key); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listItemApplications = `-- name: ListItemApplications :many
SELECT itemappid, applicationid, itemid
FROM items_applications
WHERE itemid = ANY($1::bigint[])
ORDER BY itemappid
`

func (q *Queries) ListItemApplications(ctx context.Context, itemIDs []int64) ([]ItemApplication, error) {
	rows, err := q.db.Query(ctx, listItemApplications, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemApplication
	for rows.Next() {
		var i ItemApplication
		if err := rows.Scan(&i.ItemAppID, &i.ApplicationID, &i.ItemID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertItem = `-- name: InsertItem :exec
INSERT INTO items (
  itemid,
  hostid,
  name,
  key_,
  type,
  value_type,
  delay,
  history,
  trends,
  status,
  units,
  params,
  snmp_oid,
  ipmi_sensor,
  description,
  flags
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

const updateItem = `-- name: UpdateItem :exec
UPDATE items
SET name = $2,
    key_ = $3,
    type = $4,
    value_type = $5,
    delay = $6,
    history = $7,
    trends = $8,
    units = $9,
    params = $10,
    snmp_oid = $11,
    ipmi_sensor = $12,
    description = $13
WHERE itemid = $1
`

const insertItemDiscovery = `-- name: InsertItemDiscovery :exec
INSERT INTO item_discovery (itemdiscoveryid, itemid, parent_itemid, key_, lastcheck, ts_delete)
VALUES ($1, $2, $3, $4, $5, 0)
`

const refreshItemDiscovery = `-- name: RefreshItemDiscovery :exec
UPDATE item_discovery
SET key_ = $3,
    lastcheck = $4,
    ts_delete = 0
WHERE itemid = $1
  AND parent_itemid = $2
`

const insertItemApplication = `-- name: InsertItemApplication :exec
INSERT INTO items_applications (itemappid, applicationid, itemid)
VALUES ($1, $2, $3)
`

const deleteItemApplications = `-- name: DeleteItemApplications :exec
DELETE FROM items_applications
WHERE itemappid = ANY($1::bigint[])
`

// SaveItemsParams is one prototype's worth of item writes.
type SaveItemsParams struct {
	Inserts             []Item
	Updates             []Item
	NewLinks            []ItemDiscovery
	RefreshedLinks      []ItemDiscovery
	NewApplications     []ItemApplication
	DeletedApplications []int64
}

func (q *Queries) SaveItems(ctx context.Context, arg SaveItemsParams) error {
	b := &pgx.Batch{}
	for _, i := range arg.Inserts {
		b.Queue(insertItem,
			i.ItemID, i.HostID, i.Name, i.Key, i.Type, i.ValueType, i.Delay, i.History, i.Trends,
			i.Status, i.Units, i.Params, i.SNMPOID, i.IPMISensor, i.Description, i.Flags)
	}
	for _, i := range arg.Updates {
		b.Queue(updateItem,
			i.ItemID, i.Name, i.Key, i.Type, i.ValueType, i.Delay, i.History, i.Trends,
			i.Units, i.Params, i.SNMPOID, i.IPMISensor, i.Description)
	}
	for _, l := range arg.NewLinks {
		b.Queue(insertItemDiscovery, l.ItemDiscoveryID, l.ItemID, l.ParentItemID, l.Key, l.Lastcheck)
	}
	for _, l := range arg.RefreshedLinks {
		b.Queue(refreshItemDiscovery, l.ItemID, l.ParentItemID, l.Key, l.Lastcheck)
	}
	if len(arg.DeletedApplications) > 0 {
		b.Queue(deleteItemApplications, arg.DeletedApplications)
	}
	for _, a := range arg.NewApplications {
		b.Queue(insertItemApplication, a.ItemAppID, a.ApplicationID, a.ItemID)
	}
	return q.sendBatch(ctx, b)
}
