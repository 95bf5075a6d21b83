package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const listGraphPrototypes = `-- name: ListGraphPrototypes :many
SELECT DISTINCT g.graphid,
       g.name,
       g.width,
       g.height,
       g.yaxismin,
       g.yaxismax,
       g.show_work_period,
       g.show_triggers,
       g.graphtype,
       g.show_legend,
       g.show_3d,
       g.percent_left,
       g.percent_right,
       g.ymin_type,
       g.ymax_type,
       g.ymin_itemid,
       g.ymax_itemid,
       g.flags
FROM graphs g
JOIN graphs_items gi ON gi.graphid = g.graphid
JOIN item_discovery id ON id.itemid = gi.itemid
WHERE id.parent_itemid = $1
  AND g.flags = 2
ORDER BY g.graphid
`

func (q *Queries) ListGraphPrototypes(ctx context.Context, ruleID int64) ([]Graph, error) {
	rows, err := q.db.Query(ctx, listGraphPrototypes, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Graph
	for rows.Next() {
		var i Graph
		if err := rows.Scan(
			&i.GraphID,
			&i.Name,
			&i.Width,
			&i.Height,
			&i.YAxisMin,
			&i.YAxisMax,
			&i.ShowWorkPeriod,
			&i.ShowTriggers,
			&i.GraphType,
			&i.ShowLegend,
			&i.Show3D,
			&i.PercentLeft,
			&i.PercentRight,
			&i.YMinType,
			&i.YMaxType,
			&i.YMinItemID,
			&i.YMaxItemID,
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

const listGraphItems = `-- name: ListGraphItems :many
SELECT gi.gitemid,
       gi.graphid,
       gi.itemid,
       i.key_,
       i.flags,
       gi.drawtype,
       gi.sortorder,
       gi.color,
       gi.yaxisside,
       gi.calc_fnc,
       gi.type
FROM graphs_items gi
JOIN items i ON i.itemid = gi.itemid
WHERE gi.graphid = ANY($1::bigint[])
ORDER BY gi.graphid, gi.sortorder, gi.gitemid
`

func (q *Queries) ListGraphItems(ctx context.Context, graphIDs []int64) ([]GraphItem, error) {
	rows, err := q.db.Query(ctx, listGraphItems, graphIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GraphItem
	for rows.Next() {
		var i GraphItem
		if err := rows.Scan(
			&i.GItemID,
			&i.GraphID,
			&i.ItemID,
			&i.Key,
			&i.ItemFlags,
			&i.DrawType,
			&i.SortOrder,
			&i.Color,
			&i.YAxisSide,
			&i.CalcFnc,
			&i.Type,
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

const listGraphLinks = `-- name: ListGraphLinks :many
SELECT g.graphid, gd.name, g.name
FROM graphs g
JOIN graph_discovery gd ON gd.graphid = g.graphid
WHERE gd.parent_graphid = $1
ORDER BY g.graphid
`

func (q *Queries) ListGraphLinks(ctx context.Context, prototypeID int64) ([]GraphLink, error) {
	rows, err := q.db.Query(ctx, listGraphLinks, prototypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GraphLink
	for rows.Next() {
		var i GraphLink
		if err := rows.Scan(&i.GraphID, &i.StoredName, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listHostGraphIDsByName = `-- name: ListHostGraphIDsByName :many
SELECT DISTINCT g.graphid
FROM graphs g
JOIN graphs_items gi ON gi.graphid = g.graphid
JOIN items i ON i.itemid = gi.itemid
WHERE i.hostid = $1
  AND g.name = $2
  AND g.flags <> 2
ORDER BY g.graphid
`

func (q *Queries) ListHostGraphIDsByName(ctx context.Context, hostID int64, name string) ([]int64, error) {
	rows, err := q.db.Query(ctx, listHostGraphIDsByName, hostID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const insertGraph = `-- name: InsertGraph :exec
INSERT INTO graphs (
  graphid,
  name,
  width,
  height,
  yaxismin,
  yaxismax,
  show_work_period,
  show_triggers,
  graphtype,
  show_legend,
  show_3d,
  percent_left,
  percent_right,
  ymin_type,
  ymax_type,
  ymin_itemid,
  ymax_itemid,
  flags
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`

const updateGraph = `-- name: UpdateGraph :exec
UPDATE graphs
SET name = $2,
    width = $3,
    height = $4,
    yaxismin = $5,
    yaxismax = $6,
    show_work_period = $7,
    show_triggers = $8,
    graphtype = $9,
    show_legend = $10,
    show_3d = $11,
    percent_left = $12,
    percent_right = $13,
    ymin_type = $14,
    ymax_type = $15,
    ymin_itemid = $16,
    ymax_itemid = $17
WHERE graphid = $1
`

const insertGraphItem = `-- name: InsertGraphItem :exec
INSERT INTO graphs_items (gitemid, graphid, itemid, drawtype, sortorder, color, yaxisside, calc_fnc, type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const updateGraphItem = `-- name: UpdateGraphItem :exec
UPDATE graphs_items
SET drawtype = $2,
    sortorder = $3,
    color = $4,
    yaxisside = $5,
    calc_fnc = $6,
    type = $7
WHERE gitemid = $1
`

const deleteGraphItems = `-- name: DeleteGraphItems :exec
DELETE FROM graphs_items
WHERE gitemid = ANY($1::bigint[])
`

const insertGraphDiscovery = `-- name: InsertGraphDiscovery :exec
INSERT INTO graph_discovery (graphdiscoveryid, graphid, parent_graphid, name, lastcheck, ts_delete)
VALUES ($1, $2, $3, $4, $5, 0)
`

const refreshGraphDiscovery = `-- name: RefreshGraphDiscovery :exec
UPDATE graph_discovery
SET name = $3,
    lastcheck = $4,
    ts_delete = 0
WHERE graphid = $1
  AND parent_graphid = $2
`

// SaveGraphsParams is one prototype's worth of graph writes.
type SaveGraphsParams struct {
	Inserts           []Graph
	Updates           []Graph
	NewGraphItems     []GraphItem
	UpdatedGraphItems []GraphItem
	DeletedGraphItems []int64
	NewLinks          []GraphDiscovery
	RefreshedLinks    []GraphDiscovery
}

func (q *Queries) SaveGraphs(ctx context.Context, arg SaveGraphsParams) error {
	b := &pgx.Batch{}
	for _, g := range arg.Inserts {
		b.Queue(insertGraph,
			g.GraphID, g.Name, g.Width, g.Height, g.YAxisMin, g.YAxisMax, g.ShowWorkPeriod, g.ShowTriggers,
			g.GraphType, g.ShowLegend, g.Show3D, g.PercentLeft, g.PercentRight, g.YMinType, g.YMaxType,
			g.YMinItemID, g.YMaxItemID, g.Flags)
	}
	for _, g := range arg.Updates {
		b.Queue(updateGraph,
			g.GraphID, g.Name, g.Width, g.Height, g.YAxisMin, g.YAxisMax, g.ShowWorkPeriod, g.ShowTriggers,
			g.GraphType, g.ShowLegend, g.Show3D, g.PercentLeft, g.PercentRight, g.YMinType, g.YMaxType,
			g.YMinItemID, g.YMaxItemID)
	}
	if len(arg.DeletedGraphItems) > 0 {
		b.Queue(deleteGraphItems, arg.DeletedGraphItems)
	}
	for _, gi := range arg.UpdatedGraphItems {
		b.Queue(updateGraphItem, gi.GItemID, gi.DrawType, gi.SortOrder, gi.Color, gi.YAxisSide, gi.CalcFnc, gi.Type)
	}
	for _, gi := range arg.NewGraphItems {
		b.Queue(insertGraphItem, gi.GItemID, gi.GraphID, gi.ItemID, gi.DrawType, gi.SortOrder, gi.Color, gi.YAxisSide, gi.CalcFnc, gi.Type)
	}
	for _, l := range arg.NewLinks {
		b.Queue(insertGraphDiscovery, l.GraphDiscoveryID, l.GraphID, l.ParentGraphID, l.Name, l.Lastcheck)
	}
	for _, l := range arg.RefreshedLinks {
		b.Queue(refreshGraphDiscovery, l.GraphID, l.ParentGraphID, l.Name, l.Lastcheck)
	}
	return q.sendBatch(ctx, b)
}
