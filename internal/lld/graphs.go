package lld

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lldsync/core-go/internal/sqlcgen"
)

type graphCandidate struct {
	graph sqlcgen.Graph
	isNew bool
	// items are the graph items wanted; GItemID is set for rows kept from the
	// existing graph.
	items        []sqlcgen.GraphItem
	deletedItems []int64
}

func (r *run) reconcileGraphs(ctx context.Context) error {
	protos, err := r.q.ListGraphPrototypes(ctx, r.rule.ItemID)
	if err != nil {
		return fmt.Errorf("list graph prototypes: %w", err)
	}
	for _, proto := range protos {
		if err := r.reconcileGraphPrototype(ctx, proto); err != nil {
			return fmt.Errorf("graph prototype %d: %w", proto.GraphID, err)
		}
	}
	return nil
}

func (r *run) reconcileGraphPrototype(ctx context.Context, proto sqlcgen.Graph) error {
	protoItems, err := r.q.ListGraphItems(ctx, []int64{proto.GraphID})
	if err != nil {
		return fmt.Errorf("list prototype graph items: %w", err)
	}
	rows, err := r.q.ListGraphLinks(ctx, proto.GraphID)
	if err != nil {
		return fmt.Errorf("list graph links: %w", err)
	}
	links := make([]link, 0, len(rows))
	for _, l := range rows {
		links = append(links, link{entityID: l.GraphID, stored: l.StoredName, current: l.Name})
	}
	axisItems, err := r.axisItems(ctx, proto)
	if err != nil {
		return err
	}

	batch := make([]*graphCandidate, 0, len(r.records))
	claimed := make(map[int64]bool)
	names := make(map[string]bool)
	for _, rec := range r.records {
		c, err := r.buildGraph(ctx, proto, protoItems, axisItems, rec, links, claimed, names)
		if err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				r.reject(rej)
				continue
			}
			return err
		}
		batch = append(batch, c)
	}

	if err := r.diffGraphItems(ctx, batch); err != nil {
		return err
	}

	sortByIdentity(batch,
		func(c *graphCandidate) int64 { return c.graph.GraphID },
		func(c *graphCandidate) string { return c.graph.Name })

	saved, err := persist(ctx, batch,
		func(ctx context.Context, part []*graphCandidate) error { return r.saveGraphs(ctx, proto, part) },
		func(c *graphCandidate) { r.reject(alreadyExists(sqlcgen.KindGraph, !c.isNew, c.graph.Name)) })
	if err != nil {
		return err
	}
	for _, c := range saved {
		r.counted(sqlcgen.KindGraph, c.isNew)
	}
	return nil
}

// axisItems loads the items referenced by the prototype's Y axis bounds.
func (r *run) axisItems(ctx context.Context, proto sqlcgen.Graph) (map[int64]sqlcgen.ItemRef, error) {
	var ids []int64
	if proto.YMinType == sqlcgen.GraphYAxisItemValue && proto.YMinItemID != nil {
		ids = append(ids, *proto.YMinItemID)
	}
	if proto.YMaxType == sqlcgen.GraphYAxisItemValue && proto.YMaxItemID != nil {
		ids = append(ids, *proto.YMaxItemID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	refs, err := r.q.ListItemsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list axis items: %w", err)
	}
	byID := make(map[int64]sqlcgen.ItemRef, len(refs))
	for _, ref := range refs {
		byID[ref.ItemID] = ref
	}
	return byID, nil
}

// buildGraph instantiates proto for rec. Candidate failures are returned as
// *Rejection.
func (r *run) buildGraph(ctx context.Context, proto sqlcgen.Graph, protoItems []sqlcgen.GraphItem, axisItems map[int64]sqlcgen.ItemRef,
	rec Record, links []link, claimed map[int64]bool, names map[string]bool,
) (*graphCandidate, error) {
	name := r.macros.Text(proto.Name, rec)
	graphID := resolveLink(links, name, rec, r.macros.Text, claimed)
	update := graphID != 0

	if names[name] {
		return nil, alreadyExists(sqlcgen.KindGraph, update, name)
	}
	ids, err := r.q.ListHostGraphIDsByName(ctx, r.rule.HostID, name)
	if err != nil {
		return nil, fmt.Errorf("list host graphs %q: %w", name, err)
	}
	for _, id := range ids {
		if id != graphID {
			return nil, alreadyExists(sqlcgen.KindGraph, update, name)
		}
	}

	items := make([]sqlcgen.GraphItem, 0, len(protoItems))
	for _, gi := range protoItems {
		gi.GItemID = 0
		gi.GraphID = 0
		if gi.ItemFlags == sqlcgen.FlagPrototype {
			key := r.macros.Key(gi.Key, rec)
			itemID, err := r.discoveredItemID(ctx, sqlcgen.KindGraph, update, name, key)
			if err != nil {
				return nil, err
			}
			gi.ItemID = itemID
			gi.Key = key
			gi.ItemFlags = sqlcgen.FlagCreated
		}
		items = append(items, gi)
	}

	g := proto
	g.GraphID = graphID
	g.Name = name
	g.Flags = sqlcgen.FlagCreated
	if g.YMinType == sqlcgen.GraphYAxisItemValue {
		if g.YMinItemID, err = r.axisItemID(ctx, proto.YMinItemID, axisItems, rec, update, name); err != nil {
			return nil, err
		}
		if g.YMinItemID == nil {
			g.YMinType = sqlcgen.GraphYAxisCalculated
		}
	}
	if g.YMaxType == sqlcgen.GraphYAxisItemValue {
		if g.YMaxItemID, err = r.axisItemID(ctx, proto.YMaxItemID, axisItems, rec, update, name); err != nil {
			return nil, err
		}
		if g.YMaxItemID == nil {
			g.YMaxType = sqlcgen.GraphYAxisCalculated
		}
	}

	names[name] = true
	if update {
		claimed[graphID] = true
	}
	return &graphCandidate{graph: g, isNew: !update, items: items}, nil
}

// axisItemID maps a Y axis item of the prototype to the item discovered for
// rec. Items that are not prototypes are kept.
func (r *run) axisItemID(ctx context.Context, itemID *int64, axisItems map[int64]sqlcgen.ItemRef, rec Record, update bool, name string) (*int64, error) {
	if itemID == nil {
		return nil, nil
	}
	ref, ok := axisItems[*itemID]
	if !ok || ref.Flags != sqlcgen.FlagPrototype {
		return itemID, nil
	}
	id, err := r.discoveredItemID(ctx, sqlcgen.KindGraph, update, name, r.macros.Key(ref.Key, rec))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// discoveredItemID looks up the item with key on the rule's host. A missing item
// rejects the candidate named name.
func (r *run) discoveredItemID(ctx context.Context, kind sqlcgen.EntityKind, update bool, name, key string) (int64, error) {
	itemID, err := r.q.FindItemIDByKey(ctx, r.rule.HostID, key)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, missingItem(kind, update, name, key)
	case err != nil:
		return 0, fmt.Errorf("find item %q: %w", key, err)
	}
	return itemID, nil
}

// diffGraphItems matches the wanted graph items of existing graphs against
// their current rows by item id. Matched rows are updated in place, the rest
// are inserted, and rows left over are deleted.
func (r *run) diffGraphItems(ctx context.Context, batch []*graphCandidate) error {
	var ids []int64
	for _, c := range batch {
		if !c.isNew {
			ids = append(ids, c.graph.GraphID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	current, err := r.q.ListGraphItems(ctx, ids)
	if err != nil {
		return fmt.Errorf("list graph items: %w", err)
	}
	byGraph := make(map[int64][]sqlcgen.GraphItem)
	for _, gi := range current {
		byGraph[gi.GraphID] = append(byGraph[gi.GraphID], gi)
	}

	for _, c := range batch {
		if c.isNew {
			continue
		}
		rows := byGraph[c.graph.GraphID]
		used := make([]bool, len(rows))
		for i := range c.items {
			for j, row := range rows {
				if !used[j] && row.ItemID == c.items[i].ItemID {
					used[j] = true
					c.items[i].GItemID = row.GItemID
					break
				}
			}
		}
		for j, row := range rows {
			if !used[j] {
				c.deletedItems = append(c.deletedItems, row.GItemID)
			}
		}
	}
	return nil
}

// saveGraphs writes part in one batch, drawing new ids in iteration order.
func (r *run) saveGraphs(ctx context.Context, proto sqlcgen.Graph, part []*graphCandidate) error {
	var newGraphs, newItems int
	for _, c := range part {
		if c.isNew {
			newGraphs++
		}
		for _, gi := range c.items {
			if gi.GItemID == 0 {
				newItems++
			}
		}
	}

	nextGraph, err := r.reserve(ctx, "graphs", newGraphs)
	if err != nil {
		return err
	}
	nextLink, err := r.reserve(ctx, "graph_discovery", newGraphs)
	if err != nil {
		return err
	}
	nextItem, err := r.reserve(ctx, "graphs_items", newItems)
	if err != nil {
		return err
	}

	var arg sqlcgen.SaveGraphsParams
	ids := make([]int64, len(part))
	for i, c := range part {
		g := c.graph
		if c.isNew {
			g.GraphID = nextGraph
			nextGraph++
			arg.Inserts = append(arg.Inserts, g)
			arg.NewLinks = append(arg.NewLinks, sqlcgen.GraphDiscovery{
				GraphDiscoveryID: nextLink,
				GraphID:          g.GraphID,
				ParentGraphID:    proto.GraphID,
				Name:             proto.Name,
				Lastcheck:        r.lastcheck,
			})
			nextLink++
		} else {
			arg.Updates = append(arg.Updates, g)
			arg.RefreshedLinks = append(arg.RefreshedLinks, sqlcgen.GraphDiscovery{
				GraphID:       g.GraphID,
				ParentGraphID: proto.GraphID,
				Name:          proto.Name,
				Lastcheck:     r.lastcheck,
			})
		}
		ids[i] = g.GraphID

		for _, gi := range c.items {
			gi.GraphID = g.GraphID
			if gi.GItemID == 0 {
				gi.GItemID = nextItem
				nextItem++
				arg.NewGraphItems = append(arg.NewGraphItems, gi)
			} else {
				arg.UpdatedGraphItems = append(arg.UpdatedGraphItems, gi)
			}
		}
		arg.DeletedGraphItems = append(arg.DeletedGraphItems, c.deletedItems...)
	}

	if err := r.q.SaveGraphs(ctx, arg); err != nil {
		return fmt.Errorf("save graphs: %w", err)
	}
	for i, c := range part {
		c.graph.GraphID = ids[i]
	}
	return nil
}
