package lld

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lldsync/core-go/internal/sqlcgen"
)

type itemCandidate struct {
	item  sqlcgen.Item
	isNew bool
	// Applications to link and items_applications rows to drop.
	newApps []int64
	delApps []int64
}

func (r *run) reconcileItems(ctx context.Context) error {
	protos, err := r.q.ListItemPrototypes(ctx, r.rule.ItemID)
	if err != nil {
		return fmt.Errorf("list item prototypes: %w", err)
	}
	for _, proto := range protos {
		if err := r.reconcileItemPrototype(ctx, proto); err != nil {
			return fmt.Errorf("item prototype %d: %w", proto.ItemID, err)
		}
	}
	return nil
}

func (r *run) reconcileItemPrototype(ctx context.Context, proto sqlcgen.Item) error {
	rows, err := r.q.ListItemLinks(ctx, proto.ItemID)
	if err != nil {
		return fmt.Errorf("list item links: %w", err)
	}
	links := make([]link, 0, len(rows))
	for _, l := range rows {
		links = append(links, link{entityID: l.ItemID, stored: l.StoredKey, current: l.Key})
	}

	protoApps, err := r.q.ListItemApplications(ctx, []int64{proto.ItemID})
	if err != nil {
		return fmt.Errorf("list prototype applications: %w", err)
	}

	batch := make([]*itemCandidate, 0, len(r.records))
	claimed := make(map[int64]bool)
	keys := make(map[string]bool)
	for _, rec := range r.records {
		c, err := r.buildItem(ctx, proto, rec, links, claimed, keys)
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

	if err := r.diffItemApplications(ctx, batch, protoApps); err != nil {
		return err
	}

	sortByIdentity(batch,
		func(c *itemCandidate) int64 { return c.item.ItemID },
		func(c *itemCandidate) string { return c.item.Key })

	saved, err := persist(ctx, batch,
		func(ctx context.Context, part []*itemCandidate) error { return r.saveItems(ctx, proto, part) },
		func(c *itemCandidate) { r.reject(alreadyExists(sqlcgen.KindItem, !c.isNew, c.item.Key)) })
	if err != nil {
		return err
	}
	for _, c := range saved {
		r.counted(sqlcgen.KindItem, c.isNew)
	}
	return nil
}

// buildItem instantiates proto for rec. Candidate failures are returned as
// *Rejection.
func (r *run) buildItem(ctx context.Context, proto sqlcgen.Item, rec Record, links []link, claimed map[int64]bool, keys map[string]bool) (*itemCandidate, error) {
	key := r.macros.Key(proto.Key, rec)
	itemID := resolveLink(links, key, rec, r.macros.Key, claimed)
	update := itemID != 0

	if keys[key] {
		return nil, alreadyExists(sqlcgen.KindItem, update, key)
	}

	existing, err := r.q.FindItemIDByKey(ctx, r.rule.HostID, key)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("find item %q: %w", key, err)
	case existing != itemID:
		return nil, alreadyExists(sqlcgen.KindItem, update, key)
	}

	item := proto
	item.ItemID = itemID
	item.Key = key
	item.Name = r.macros.Text(proto.Name, rec)
	item.Params = r.macros.Text(proto.Params, rec)
	item.SNMPOID = r.macros.Text(proto.SNMPOID, rec)
	item.IPMISensor = r.macros.Text(proto.IPMISensor, rec)
	item.Description = r.macros.Text(proto.Description, rec)
	item.Flags = sqlcgen.FlagCreated

	keys[key] = true
	if update {
		claimed[itemID] = true
	}
	return &itemCandidate{item: item, isNew: !update}, nil
}

// diffItemApplications sets the application links each candidate gains and
// loses so that it ends up linked to the prototype's applications.
func (r *run) diffItemApplications(ctx context.Context, batch []*itemCandidate, protoApps []sqlcgen.ItemApplication) error {
	want := make(map[int64]bool, len(protoApps))
	for _, a := range protoApps {
		want[a.ApplicationID] = true
	}

	var ids []int64
	for _, c := range batch {
		if !c.isNew {
			ids = append(ids, c.item.ItemID)
		}
	}
	have := make(map[int64][]sqlcgen.ItemApplication)
	if len(ids) > 0 {
		current, err := r.q.ListItemApplications(ctx, ids)
		if err != nil {
			return fmt.Errorf("list item applications: %w", err)
		}
		for _, a := range current {
			have[a.ItemID] = append(have[a.ItemID], a)
		}
	}

	for _, c := range batch {
		linked := make(map[int64]bool)
		for _, a := range have[c.item.ItemID] {
			linked[a.ApplicationID] = true
			if !want[a.ApplicationID] {
				c.delApps = append(c.delApps, a.ItemAppID)
			}
		}
		for _, a := range protoApps {
			if !linked[a.ApplicationID] {
				c.newApps = append(c.newApps, a.ApplicationID)
			}
		}
	}
	return nil
}

// saveItems writes part in one batch. New ids are drawn while iterating part in
// order and copied onto the candidates only once the batch is saved.
func (r *run) saveItems(ctx context.Context, proto sqlcgen.Item, part []*itemCandidate) error {
	var newItems, newApps int
	for _, c := range part {
		if c.isNew {
			newItems++
		}
		newApps += len(c.newApps)
	}

	nextItem, err := r.reserve(ctx, "items", newItems)
	if err != nil {
		return err
	}
	nextLink, err := r.reserve(ctx, "item_discovery", newItems)
	if err != nil {
		return err
	}
	nextApp, err := r.reserve(ctx, "items_applications", newApps)
	if err != nil {
		return err
	}

	var arg sqlcgen.SaveItemsParams
	ids := make([]int64, len(part))
	for i, c := range part {
		item := c.item
		if c.isNew {
			item.ItemID = nextItem
			nextItem++
			arg.Inserts = append(arg.Inserts, item)
			arg.NewLinks = append(arg.NewLinks, sqlcgen.ItemDiscovery{
				ItemDiscoveryID: nextLink,
				ItemID:          item.ItemID,
				ParentItemID:    proto.ItemID,
				Key:             proto.Key,
				Lastcheck:       r.lastcheck,
			})
			nextLink++
		} else {
			arg.Updates = append(arg.Updates, item)
			arg.RefreshedLinks = append(arg.RefreshedLinks, sqlcgen.ItemDiscovery{
				ItemID:       item.ItemID,
				ParentItemID: proto.ItemID,
				Key:          proto.Key,
				Lastcheck:    r.lastcheck,
			})
		}
		ids[i] = item.ItemID

		for _, appID := range c.newApps {
			arg.NewApplications = append(arg.NewApplications, sqlcgen.ItemApplication{
				ItemAppID:     nextApp,
				ApplicationID: appID,
				ItemID:        item.ItemID,
			})
			nextApp++
		}
		arg.DeletedApplications = append(arg.DeletedApplications, c.delApps...)
	}

	if err := r.q.SaveItems(ctx, arg); err != nil {
		return fmt.Errorf("save items: %w", err)
	}
	for i, c := range part {
		c.item.ItemID = ids[i]
	}
	return nil
}
