package lld

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/jackc/pgx/v5"

	"lldsync/core-go/internal/sqlcgen"
)

// memStore is an in-memory Queries and Store with the semantics of the
// PostgreSQL queries: saves run in a savepoint, (hostid, key_) is unique for
// items, and deletes cascade like the schema's foreign keys.
type memStore struct {
	memTables

	// beforeSaveItems runs once, outside the savepoint, before the next
	// SaveItems. Tests use it to play a concurrent writer.
	beforeSaveItems func(s *memStore)
	saveItemsCalls  int
	ruleUpdates     int
	ruleLocks       []int64
}

type memLink struct {
	id        int64
	entityID  int64
	parentID  int64
	name      string
	lastcheck int64
	tsDelete  int64
}

type memFunction struct {
	functionID int64
	itemID     int64
	triggerID  int64
	function   string
	parameter  string
}

type memTables struct {
	hosts        map[int64]string
	rules        map[int64]sqlcgen.DiscoveryRule
	items        map[int64]sqlcgen.Item
	itemLinks    []memLink
	itemApps     []sqlcgen.ItemApplication
	triggers     map[int64]sqlcgen.Trigger
	functions    []memFunction
	triggerLinks []memLink
	graphs       map[int64]sqlcgen.Graph
	graphItems   []sqlcgen.GraphItem
	graphLinks   []memLink
	regexps      []sqlcgen.RegexpExpression
	macros       []sqlcgen.UserMacro
	ids          map[string]int64
}

func (t memTables) clone() memTables {
	return memTables{
		hosts:        maps.Clone(t.hosts),
		rules:        maps.Clone(t.rules),
		items:        maps.Clone(t.items),
		itemLinks:    slices.Clone(t.itemLinks),
		itemApps:     slices.Clone(t.itemApps),
		triggers:     maps.Clone(t.triggers),
		functions:    slices.Clone(t.functions),
		triggerLinks: slices.Clone(t.triggerLinks),
		graphs:       maps.Clone(t.graphs),
		graphItems:   slices.Clone(t.graphItems),
		graphLinks:   slices.Clone(t.graphLinks),
		regexps:      slices.Clone(t.regexps),
		macros:       slices.Clone(t.macros),
		ids:          maps.Clone(t.ids),
	}
}

func newMemStore() *memStore {
	return &memStore{memTables: memTables{
		hosts:    make(map[int64]string),
		rules:    make(map[int64]sqlcgen.DiscoveryRule),
		items:    make(map[int64]sqlcgen.Item),
		triggers: make(map[int64]sqlcgen.Trigger),
		graphs:   make(map[int64]sqlcgen.Graph),
		ids:      make(map[string]int64),
	}}
}

func (s *memStore) RunInTx(_ context.Context, fn func(q Queries) error) error {
	return s.savepoint(func() error { return fn(s) })
}

func (s *memStore) savepoint(fn func() error) error {
	snap := s.memTables.clone()
	if err := fn(); err != nil {
		s.memTables = snap
		return err
	}
	return nil
}

// Seeding.

func (s *memStore) addHost(id int64, name string) {
	s.hosts[id] = name
}

func (s *memStore) addRule(rule sqlcgen.DiscoveryRule) {
	s.rules[rule.ItemID] = rule
}

func (s *memStore) addItem(item sqlcgen.Item) {
	s.items[item.ItemID] = item
}

func (s *memStore) addItemPrototype(ruleID int64, item sqlcgen.Item) {
	item.Flags = sqlcgen.FlagPrototype
	s.items[item.ItemID] = item
	s.itemLinks = append(s.itemLinks, memLink{
		id:       int64(9000 + len(s.itemLinks)),
		entityID: item.ItemID,
		parentID: ruleID,
	})
}

func (s *memStore) addTrigger(t sqlcgen.Trigger, funcs ...memFunction) {
	s.triggers[t.TriggerID] = t
	for _, f := range funcs {
		f.triggerID = t.TriggerID
		s.functions = append(s.functions, f)
	}
}

func (s *memStore) addGraph(g sqlcgen.Graph, items ...sqlcgen.GraphItem) {
	s.graphs[g.GraphID] = g
	for _, gi := range items {
		gi.GraphID = g.GraphID
		s.graphItems = append(s.graphItems, gi)
	}
}

// Inspection.

func (s *memStore) itemsWithFlags(flags int16) []sqlcgen.Item {
	var out []sqlcgen.Item
	for _, it := range s.items {
		if it.Flags == flags {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (s *memStore) itemByKey(key string) (sqlcgen.Item, bool) {
	for _, it := range s.items {
		if it.Key == key {
			return it, true
		}
	}
	return sqlcgen.Item{}, false
}

func (s *memStore) itemLinkOf(itemID int64) (memLink, bool) {
	for _, l := range s.itemLinks {
		if l.entityID == itemID {
			return l, true
		}
	}
	return memLink{}, false
}

func (s *memStore) triggersWithFlags(flags int16) []sqlcgen.Trigger {
	var out []sqlcgen.Trigger
	for _, t := range s.triggers {
		if t.Flags == flags {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerID < out[j].TriggerID })
	return out
}

func (s *memStore) functionsOf(triggerID int64) []memFunction {
	var out []memFunction
	for _, f := range s.functions {
		if f.triggerID == triggerID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].functionID < out[j].functionID })
	return out
}

func (s *memStore) graphsWithFlags(flags int16) []sqlcgen.Graph {
	var out []sqlcgen.Graph
	for _, g := range s.graphs {
		if g.Flags == flags {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraphID < out[j].GraphID })
	return out
}

func (s *memStore) graphItemsOf(graphID int64) []sqlcgen.GraphItem {
	var out []sqlcgen.GraphItem
	for _, gi := range s.graphItems {
		if gi.GraphID == graphID {
			out = append(out, gi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GItemID < out[j].GItemID })
	return out
}

func (s *memStore) rowCount() int {
	return len(s.items) + len(s.itemLinks) + len(s.itemApps) + len(s.triggers) + len(s.functions) +
		len(s.triggerLinks) + len(s.graphs) + len(s.graphItems) + len(s.graphLinks)
}

// Queries.

func (s *memStore) GetDiscoveryRule(_ context.Context, itemID int64) (sqlcgen.DiscoveryRule, error) {
	rule, ok := s.rules[itemID]
	if !ok {
		return sqlcgen.DiscoveryRule{}, pgx.ErrNoRows
	}
	rule.Host = s.hosts[rule.HostID]
	return rule, nil
}

func (s *memStore) LockDiscoveryRule(ctx context.Context, itemID int64) (sqlcgen.DiscoveryRule, error) {
	s.ruleLocks = append(s.ruleLocks, itemID)
	return s.GetDiscoveryRule(ctx, itemID)
}

func (s *memStore) UpdateDiscoveryRuleState(_ context.Context, arg sqlcgen.UpdateDiscoveryRuleStateParams) error {
	rule, ok := s.rules[arg.ItemID]
	if !ok {
		return nil
	}
	rule.Status = arg.Status
	rule.Error = arg.Error
	s.rules[arg.ItemID] = rule
	s.ruleUpdates++
	return nil
}

func (s *memStore) ListRegexpExpressions(_ context.Context, name string) ([]sqlcgen.RegexpExpression, error) {
	var out []sqlcgen.RegexpExpression
	for _, e := range s.regexps {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListUserMacros(_ context.Context, hostID int64) ([]sqlcgen.UserMacro, error) {
	var out []sqlcgen.UserMacro
	for _, m := range s.macros {
		if m.HostID != nil && *m.HostID == hostID {
			out = append(out, m)
		}
	}
	for _, m := range s.macros {
		if m.HostID == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) maxID(table string) int64 {
	var top int64
	bump := func(id int64) {
		if id > top {
			top = id
		}
	}
	switch table {
	case "items":
		for id := range s.items {
			bump(id)
		}
		for id := range s.rules {
			bump(id)
		}
	case "item_discovery":
		for _, l := range s.itemLinks {
			bump(l.id)
		}
	case "items_applications":
		for _, a := range s.itemApps {
			bump(a.ItemAppID)
		}
	case "triggers":
		for id := range s.triggers {
			bump(id)
		}
	case "trigger_discovery":
		for _, l := range s.triggerLinks {
			bump(l.id)
		}
	case "functions":
		for _, f := range s.functions {
			bump(f.functionID)
		}
	case "graphs":
		for id := range s.graphs {
			bump(id)
		}
	case "graph_discovery":
		for _, l := range s.graphLinks {
			bump(l.id)
		}
	case "graphs_items":
		for _, gi := range s.graphItems {
			bump(gi.GItemID)
		}
	}
	return top
}

func (s *memStore) ReserveIDs(_ context.Context, table string, count int) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("reserve ids: invalid count %d", count)
	}
	next, ok := s.ids[table]
	if !ok {
		next = s.maxID(table)
	}
	next += int64(count)
	s.ids[table] = next
	return next - int64(count) + 1, nil
}

func (s *memStore) FindItemIDByKey(_ context.Context, hostID int64, key string) (int64, error) {
	for _, it := range s.items {
		if it.HostID == hostID && it.Key == key {
			return it.ItemID, nil
		}
	}
	for _, r := range s.rules {
		if r.HostID == hostID && r.Key == key {
			return r.ItemID, nil
		}
	}
	return 0, pgx.ErrNoRows
}

func (s *memStore) ListItemsByID(_ context.Context, itemIDs []int64) ([]sqlcgen.ItemRef, error) {
	var out []sqlcgen.ItemRef
	for _, id := range itemIDs {
		if it, ok := s.items[id]; ok {
			out = append(out, sqlcgen.ItemRef{ItemID: it.ItemID, Key: it.Key, Flags: it.Flags})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// prototypeItemIDs returns the item prototypes of a rule.
func (s *memStore) prototypeItemIDs(ruleID int64) map[int64]bool {
	ids := make(map[int64]bool)
	for _, l := range s.itemLinks {
		if l.parentID == ruleID && s.items[l.entityID].Flags == sqlcgen.FlagPrototype {
			ids[l.entityID] = true
		}
	}
	return ids
}

func (s *memStore) ListItemPrototypes(_ context.Context, ruleID int64) ([]sqlcgen.Item, error) {
	var out []sqlcgen.Item
	for id := range s.prototypeItemIDs(ruleID) {
		out = append(out, s.items[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *memStore) ListItemLinks(_ context.Context, prototypeID int64) ([]sqlcgen.ItemLink, error) {
	var out []sqlcgen.ItemLink
	for _, l := range s.itemLinks {
		if l.parentID == prototypeID {
			out = append(out, sqlcgen.ItemLink{ItemID: l.entityID, StoredKey: l.name, Key: s.items[l.entityID].Key})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *memStore) ListItemApplications(_ context.Context, itemIDs []int64) ([]sqlcgen.ItemApplication, error) {
	var out []sqlcgen.ItemApplication
	for _, a := range s.itemApps {
		if slices.Contains(itemIDs, a.ItemID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemAppID < out[j].ItemAppID })
	return out, nil
}

func (s *memStore) SaveItems(_ context.Context, arg sqlcgen.SaveItemsParams) error {
	s.saveItemsCalls++
	if hook := s.beforeSaveItems; hook != nil {
		s.beforeSaveItems = nil
		hook(s)
	}
	return s.savepoint(func() error {
		for _, it := range arg.Inserts {
			if _, ok := s.items[it.ItemID]; ok {
				return fmt.Errorf("%w: items_pkey", sqlcgen.ErrUniqueViolation)
			}
			s.items[it.ItemID] = it
		}
		for _, it := range arg.Updates {
			cur, ok := s.items[it.ItemID]
			if !ok {
				return fmt.Errorf("update missing item %d", it.ItemID)
			}
			it.HostID, it.Status, it.Flags = cur.HostID, cur.Status, cur.Flags
			s.items[it.ItemID] = it
		}
		for _, l := range arg.NewLinks {
			s.itemLinks = append(s.itemLinks, memLink{id: l.ItemDiscoveryID, entityID: l.ItemID, parentID: l.ParentItemID, name: l.Key, lastcheck: l.Lastcheck})
		}
		for _, l := range arg.RefreshedLinks {
			for i := range s.itemLinks {
				if s.itemLinks[i].entityID == l.ItemID && s.itemLinks[i].parentID == l.ParentItemID {
					s.itemLinks[i].name = l.Key
					s.itemLinks[i].lastcheck = l.Lastcheck
					s.itemLinks[i].tsDelete = 0
				}
			}
		}
		s.itemApps = slices.DeleteFunc(s.itemApps, func(a sqlcgen.ItemApplication) bool {
			return slices.Contains(arg.DeletedApplications, a.ItemAppID)
		})
		s.itemApps = append(s.itemApps, arg.NewApplications...)

		seen := make(map[string]bool)
		for _, it := range s.items {
			k := fmt.Sprintf("%d/%s", it.HostID, it.Key)
			if seen[k] {
				return fmt.Errorf("%w: items_hostid_key_key", sqlcgen.ErrUniqueViolation)
			}
			seen[k] = true
		}
		return nil
	})
}

// prototypeTriggerIDs returns the triggers reading an item prototype of a rule.
func (s *memStore) prototypeTriggerIDs(ruleID int64) map[int64]bool {
	protos := s.prototypeItemIDs(ruleID)
	ids := make(map[int64]bool)
	for _, f := range s.functions {
		if protos[f.itemID] && s.triggers[f.triggerID].Flags == sqlcgen.FlagPrototype {
			ids[f.triggerID] = true
		}
	}
	return ids
}

func (s *memStore) ListTriggerPrototypes(_ context.Context, ruleID int64) ([]sqlcgen.Trigger, error) {
	var out []sqlcgen.Trigger
	for id := range s.prototypeTriggerIDs(ruleID) {
		out = append(out, s.triggers[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerID < out[j].TriggerID })
	return out, nil
}

func (s *memStore) ListHostTriggersByDescription(_ context.Context, hostID int64, description string) ([]sqlcgen.Trigger, error) {
	ids := make(map[int64]bool)
	for _, f := range s.functions {
		t := s.triggers[f.triggerID]
		if s.items[f.itemID].HostID == hostID && t.Description == description && t.Flags != sqlcgen.FlagPrototype {
			ids[f.triggerID] = true
		}
	}
	var out []sqlcgen.Trigger
	for id := range ids {
		out = append(out, s.triggers[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerID < out[j].TriggerID })
	return out, nil
}

func (s *memStore) ListFunctions(_ context.Context, triggerIDs []int64) ([]sqlcgen.Function, error) {
	var out []sqlcgen.Function
	for _, f := range s.functions {
		if !slices.Contains(triggerIDs, f.triggerID) {
			continue
		}
		it := s.items[f.itemID]
		out = append(out, sqlcgen.Function{
			FunctionID: f.functionID,
			TriggerID:  f.triggerID,
			ItemID:     f.itemID,
			Host:       s.hosts[it.HostID],
			Key:        it.Key,
			ItemFlags:  it.Flags,
			Function:   f.function,
			Parameter:  f.parameter,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerID != out[j].TriggerID {
			return out[i].TriggerID < out[j].TriggerID
		}
		return out[i].FunctionID < out[j].FunctionID
	})
	return out, nil
}

func (s *memStore) ListTriggerLinks(_ context.Context, prototypeID int64) ([]sqlcgen.TriggerLink, error) {
	var out []sqlcgen.TriggerLink
	for _, l := range s.triggerLinks {
		if l.parentID == prototypeID {
			t := s.triggers[l.entityID]
			out = append(out, sqlcgen.TriggerLink{
				TriggerID:         l.entityID,
				StoredDescription: l.name,
				Description:       t.Description,
				Expression:        t.Expression,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerID < out[j].TriggerID })
	return out, nil
}

func (s *memStore) SaveTriggers(_ context.Context, arg sqlcgen.SaveTriggersParams) error {
	return s.savepoint(func() error {
		for _, t := range arg.Inserts {
			if _, ok := s.triggers[t.TriggerID]; ok {
				return fmt.Errorf("%w: triggers_pkey", sqlcgen.ErrUniqueViolation)
			}
			s.triggers[t.TriggerID] = t
		}
		s.functions = slices.DeleteFunc(s.functions, func(f memFunction) bool {
			return slices.Contains(arg.ReplacedOf, f.triggerID)
		})
		for _, t := range arg.Updates {
			cur, ok := s.triggers[t.TriggerID]
			if !ok {
				return fmt.Errorf("update missing trigger %d", t.TriggerID)
			}
			t.Status, t.Flags = cur.Status, cur.Flags
			s.triggers[t.TriggerID] = t
		}
		for _, f := range arg.NewFunctions {
			if _, ok := s.items[f.ItemID]; !ok {
				return fmt.Errorf("function %d: item %d does not exist", f.FunctionID, f.ItemID)
			}
			s.functions = append(s.functions, memFunction{
				functionID: f.FunctionID,
				itemID:     f.ItemID,
				triggerID:  f.TriggerID,
				function:   f.Function,
				parameter:  f.Parameter,
			})
		}
		for _, l := range arg.NewLinks {
			s.triggerLinks = append(s.triggerLinks, memLink{id: l.TriggerDiscoveryID, entityID: l.TriggerID, parentID: l.ParentTriggerID, name: l.Name, lastcheck: l.Lastcheck})
		}
		for _, l := range arg.RefreshedLinks {
			for i := range s.triggerLinks {
				if s.triggerLinks[i].entityID == l.TriggerID && s.triggerLinks[i].parentID == l.ParentTriggerID {
					s.triggerLinks[i].name = l.Name
					s.triggerLinks[i].lastcheck = l.Lastcheck
					s.triggerLinks[i].tsDelete = 0
				}
			}
		}
		return nil
	})
}

// prototypeGraphIDs returns the graph prototypes showing an item prototype of a rule.
func (s *memStore) prototypeGraphIDs(ruleID int64) map[int64]bool {
	protos := s.prototypeItemIDs(ruleID)
	ids := make(map[int64]bool)
	for _, gi := range s.graphItems {
		if protos[gi.ItemID] && s.graphs[gi.GraphID].Flags == sqlcgen.FlagPrototype {
			ids[gi.GraphID] = true
		}
	}
	return ids
}

func (s *memStore) ListGraphPrototypes(_ context.Context, ruleID int64) ([]sqlcgen.Graph, error) {
	var out []sqlcgen.Graph
	for id := range s.prototypeGraphIDs(ruleID) {
		out = append(out, s.graphs[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraphID < out[j].GraphID })
	return out, nil
}

func (s *memStore) ListGraphItems(_ context.Context, graphIDs []int64) ([]sqlcgen.GraphItem, error) {
	var out []sqlcgen.GraphItem
	for _, gi := range s.graphItems {
		if slices.Contains(graphIDs, gi.GraphID) {
			it := s.items[gi.ItemID]
			gi.Key = it.Key
			gi.ItemFlags = it.Flags
			out = append(out, gi)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GraphID != b.GraphID {
			return a.GraphID < b.GraphID
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.GItemID < b.GItemID
	})
	return out, nil
}

func (s *memStore) ListGraphLinks(_ context.Context, prototypeID int64) ([]sqlcgen.GraphLink, error) {
	var out []sqlcgen.GraphLink
	for _, l := range s.graphLinks {
		if l.parentID == prototypeID {
			out = append(out, sqlcgen.GraphLink{GraphID: l.entityID, StoredName: l.name, Name: s.graphs[l.entityID].Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraphID < out[j].GraphID })
	return out, nil
}

func (s *memStore) ListHostGraphIDsByName(_ context.Context, hostID int64, name string) ([]int64, error) {
	ids := make(map[int64]bool)
	for _, gi := range s.graphItems {
		g := s.graphs[gi.GraphID]
		if s.items[gi.ItemID].HostID == hostID && g.Name == name && g.Flags != sqlcgen.FlagPrototype {
			ids[gi.GraphID] = true
		}
	}
	out := slices.Collect(maps.Keys(ids))
	slices.Sort(out)
	return out, nil
}

func (s *memStore) SaveGraphs(_ context.Context, arg sqlcgen.SaveGraphsParams) error {
	return s.savepoint(func() error {
		for _, g := range arg.Inserts {
			if _, ok := s.graphs[g.GraphID]; ok {
				return fmt.Errorf("%w: graphs_pkey", sqlcgen.ErrUniqueViolation)
			}
			s.graphs[g.GraphID] = g
		}
		for _, g := range arg.Updates {
			cur, ok := s.graphs[g.GraphID]
			if !ok {
				return fmt.Errorf("update missing graph %d", g.GraphID)
			}
			g.Flags = cur.Flags
			s.graphs[g.GraphID] = g
		}
		s.graphItems = slices.DeleteFunc(s.graphItems, func(gi sqlcgen.GraphItem) bool {
			return slices.Contains(arg.DeletedGraphItems, gi.GItemID)
		})
		for _, u := range arg.UpdatedGraphItems {
			for i := range s.graphItems {
				if s.graphItems[i].GItemID == u.GItemID {
					u.GraphID, u.ItemID = s.graphItems[i].GraphID, s.graphItems[i].ItemID
					u.Key, u.ItemFlags = "", 0
					s.graphItems[i] = u
				}
			}
		}
		for _, gi := range arg.NewGraphItems {
			if _, ok := s.items[gi.ItemID]; !ok {
				return fmt.Errorf("graph item %d: item %d does not exist", gi.GItemID, gi.ItemID)
			}
			gi.Key, gi.ItemFlags = "", 0
			s.graphItems = append(s.graphItems, gi)
		}
		for _, l := range arg.NewLinks {
			s.graphLinks = append(s.graphLinks, memLink{id: l.GraphDiscoveryID, entityID: l.GraphID, parentID: l.ParentGraphID, name: l.Name, lastcheck: l.Lastcheck})
		}
		for _, l := range arg.RefreshedLinks {
			for i := range s.graphLinks {
				if s.graphLinks[i].entityID == l.GraphID && s.graphLinks[i].parentID == l.ParentGraphID {
					s.graphLinks[i].name = l.Name
					s.graphLinks[i].lastcheck = l.Lastcheck
					s.graphLinks[i].tsDelete = 0
				}
			}
		}
		return nil
	})
}

func (s *memStore) linksOf(kind sqlcgen.EntityKind) *[]memLink {
	switch kind {
	case sqlcgen.KindTrigger:
		return &s.triggerLinks
	case sqlcgen.KindGraph:
		return &s.graphLinks
	default:
		return &s.itemLinks
	}
}

func (s *memStore) ListLostLinks(_ context.Context, kind sqlcgen.EntityKind, ruleID int64, lastcheck int64) ([]sqlcgen.DiscoveryLink, error) {
	var parents map[int64]bool
	switch kind {
	case sqlcgen.KindItem:
		parents = s.prototypeItemIDs(ruleID)
	case sqlcgen.KindTrigger:
		parents = s.prototypeTriggerIDs(ruleID)
	case sqlcgen.KindGraph:
		parents = s.prototypeGraphIDs(ruleID)
	default:
		return nil, errors.New("unknown kind")
	}

	var out []sqlcgen.DiscoveryLink
	for _, l := range *s.linksOf(kind) {
		if !parents[l.parentID] || l.lastcheck >= lastcheck {
			continue
		}
		if kind == sqlcgen.KindItem && s.items[l.entityID].Flags != sqlcgen.FlagCreated {
			continue
		}
		out = append(out, sqlcgen.DiscoveryLink{EntityID: l.entityID, ParentID: l.parentID, Lastcheck: l.lastcheck, TsDelete: l.tsDelete})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *memStore) ScheduleDeletion(_ context.Context, kind sqlcgen.EntityKind, arg []sqlcgen.DeletionSchedule) error {
	links := s.linksOf(kind)
	for _, d := range arg {
		for i := range *links {
			if (*links)[i].entityID == d.EntityID && (*links)[i].parentID == d.ParentID {
				(*links)[i].tsDelete = d.TsDelete
			}
		}
	}
	return nil
}

func (s *memStore) DeleteItems(ctx context.Context, itemIDs []int64) error {
	var triggerIDs []int64
	for _, f := range s.functions {
		if slices.Contains(itemIDs, f.itemID) && !slices.Contains(triggerIDs, f.triggerID) {
			triggerIDs = append(triggerIDs, f.triggerID)
		}
	}
	if err := s.DeleteTriggers(ctx, triggerIDs); err != nil {
		return err
	}

	for _, id := range itemIDs {
		delete(s.items, id)
	}
	s.itemLinks = slices.DeleteFunc(s.itemLinks, func(l memLink) bool {
		return slices.Contains(itemIDs, l.entityID) || slices.Contains(itemIDs, l.parentID)
	})
	s.itemApps = slices.DeleteFunc(s.itemApps, func(a sqlcgen.ItemApplication) bool {
		return slices.Contains(itemIDs, a.ItemID)
	})
	var touched []int64
	for _, gi := range s.graphItems {
		if slices.Contains(itemIDs, gi.ItemID) && !slices.Contains(touched, gi.GraphID) {
			touched = append(touched, gi.GraphID)
		}
	}
	s.graphItems = slices.DeleteFunc(s.graphItems, func(gi sqlcgen.GraphItem) bool {
		return slices.Contains(itemIDs, gi.ItemID)
	})

	var empty []int64
	for _, id := range touched {
		if len(s.graphItemsOf(id)) == 0 {
			empty = append(empty, id)
		}
	}
	return s.DeleteGraphs(ctx, empty)
}

func (s *memStore) DeleteTriggers(_ context.Context, triggerIDs []int64) error {
	for _, id := range triggerIDs {
		delete(s.triggers, id)
	}
	s.functions = slices.DeleteFunc(s.functions, func(f memFunction) bool {
		return slices.Contains(triggerIDs, f.triggerID)
	})
	s.triggerLinks = slices.DeleteFunc(s.triggerLinks, func(l memLink) bool {
		return slices.Contains(triggerIDs, l.entityID) || slices.Contains(triggerIDs, l.parentID)
	})
	return nil
}

func (s *memStore) DeleteGraphs(_ context.Context, graphIDs []int64) error {
	for _, id := range graphIDs {
		delete(s.graphs, id)
	}
	s.graphItems = slices.DeleteFunc(s.graphItems, func(gi sqlcgen.GraphItem) bool {
		return slices.Contains(graphIDs, gi.GraphID)
	})
	s.graphLinks = slices.DeleteFunc(s.graphLinks, func(l memLink) bool {
		return slices.Contains(graphIDs, l.entityID) || slices.Contains(graphIDs, l.parentID)
	})
	return nil
}

var _ Queries = (*memStore)(nil)
var _ Store = (*memStore)(nil)
