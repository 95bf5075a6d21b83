package lld

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lldsync/core-go/internal/sqlcgen"
)

type triggerCandidate struct {
	trigger sqlcgen.Trigger
	isNew   bool
	// full is the expanded expression, used for identity and collisions.
	full string
	// functions carry the prototype function ids the short expression refers
	// to, with item ids resolved for this record.
	functions []sqlcgen.Function
}

// linkedTrigger is a trigger discovered from the prototype by an earlier run.
type linkedTrigger struct {
	triggerID   int64
	stored      string
	description string
	full        string
	itemKeys    []string
}

func (r *run) reconcileTriggers(ctx context.Context) error {
	protos, err := r.q.ListTriggerPrototypes(ctx, r.rule.ItemID)
	if err != nil {
		return fmt.Errorf("list trigger prototypes: %w", err)
	}
	for _, proto := range protos {
		if err := r.reconcileTriggerPrototype(ctx, proto); err != nil {
			return fmt.Errorf("trigger prototype %d: %w", proto.TriggerID, err)
		}
	}
	return nil
}

func (r *run) reconcileTriggerPrototype(ctx context.Context, proto sqlcgen.Trigger) error {
	protoFuncs, err := r.q.ListFunctions(ctx, []int64{proto.TriggerID})
	if err != nil {
		return fmt.Errorf("list prototype functions: %w", err)
	}
	linked, err := r.loadLinkedTriggers(ctx, proto.TriggerID)
	if err != nil {
		return err
	}

	batch := make([]*triggerCandidate, 0, len(r.records))
	claimed := make(map[int64]bool)
	seen := make(map[[2]string]bool)
	for _, rec := range r.records {
		c, err := r.buildTrigger(ctx, proto, protoFuncs, rec, linked, claimed, seen)
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

	sortByIdentity(batch,
		func(c *triggerCandidate) int64 { return c.trigger.TriggerID },
		func(c *triggerCandidate) string { return c.trigger.Description })

	saved, err := persist(ctx, batch,
		func(ctx context.Context, part []*triggerCandidate) error { return r.saveTriggers(ctx, proto, part) },
		func(c *triggerCandidate) {
			r.reject(alreadyExists(sqlcgen.KindTrigger, !c.isNew, c.trigger.Description))
		})
	if err != nil {
		return err
	}
	for _, c := range saved {
		r.counted(sqlcgen.KindTrigger, c.isNew)
	}
	return nil
}

func (r *run) loadLinkedTriggers(ctx context.Context, prototypeID int64) ([]linkedTrigger, error) {
	rows, err := r.q.ListTriggerLinks(ctx, prototypeID)
	if err != nil {
		return nil, fmt.Errorf("list trigger links: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.TriggerID)
	}
	byTrigger, err := r.functionsByTrigger(ctx, ids)
	if err != nil {
		return nil, err
	}

	linked := make([]linkedTrigger, 0, len(rows))
	for _, row := range rows {
		funcs := byTrigger[row.TriggerID]
		linked = append(linked, linkedTrigger{
			triggerID:   row.TriggerID,
			stored:      row.StoredDescription,
			description: row.Description,
			full:        ExpandExpression(row.Expression, functionTable(funcs)),
			itemKeys:    itemKeysInOrder(row.Expression, funcs),
		})
	}
	return linked, nil
}

func (r *run) functionsByTrigger(ctx context.Context, triggerIDs []int64) (map[int64][]sqlcgen.Function, error) {
	funcs, err := r.q.ListFunctions(ctx, triggerIDs)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	byTrigger := make(map[int64][]sqlcgen.Function, len(triggerIDs))
	for _, f := range funcs {
		byTrigger[f.TriggerID] = append(byTrigger[f.TriggerID], f)
	}
	return byTrigger, nil
}

// buildTrigger instantiates proto for rec. Candidate failures are returned as
// *Rejection.
func (r *run) buildTrigger(ctx context.Context, proto sqlcgen.Trigger, protoFuncs []sqlcgen.Function, rec Record,
	linked []linkedTrigger, claimed map[int64]bool, seen map[[2]string]bool,
) (*triggerCandidate, error) {
	description := strings.TrimSpace(r.macros.Text(proto.Description, rec))
	expression := r.macros.Text(proto.Expression, rec)

	funcs := make([]sqlcgen.Function, len(protoFuncs))
	for i, f := range protoFuncs {
		if f.ItemFlags == sqlcgen.FlagPrototype {
			f.Key = r.macros.Key(f.Key, rec)
		}
		f.Parameter = r.macros.Text(f.Parameter, rec)
		funcs[i] = f
	}
	full := ExpandExpression(expression, functionTable(funcs))

	triggerID := r.resolveTrigger(linked, description, full, itemKeysInOrder(expression, funcs), rec, claimed)
	update := triggerID != 0

	identity := [2]string{description, full}
	if seen[identity] {
		return nil, alreadyExists(sqlcgen.KindTrigger, update, description)
	}
	taken, err := r.hostTriggerExists(ctx, description, full, triggerID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, alreadyExists(sqlcgen.KindTrigger, update, description)
	}

	for i, f := range funcs {
		if f.ItemFlags != sqlcgen.FlagPrototype {
			continue
		}
		itemID, err := r.discoveredItemID(ctx, sqlcgen.KindTrigger, update, description, f.Key)
		if err != nil {
			return nil, err
		}
		funcs[i].ItemID = itemID
		funcs[i].ItemFlags = sqlcgen.FlagCreated
	}

	t := proto
	t.TriggerID = triggerID
	t.Description = description
	t.Expression = expression
	t.Comments = r.macros.Text(proto.Comments, rec)
	t.URL = r.macros.Text(proto.URL, rec)
	t.Flags = sqlcgen.FlagCreated

	seen[identity] = true
	if update {
		claimed[triggerID] = true
	}
	return &triggerCandidate{trigger: t, isNew: !update, full: full, functions: funcs}, nil
}

// resolveTrigger finds the linked trigger the candidate corresponds to: by
// current description and expression, then by the stored description template
// expanded with rec, then by the keys of the items its functions read, compared
// position by position. Returns 0 when none matches.
func (r *run) resolveTrigger(linked []linkedTrigger, description, full string, itemKeys []string, rec Record, claimed map[int64]bool) int64 {
	for _, l := range linked {
		if !claimed[l.triggerID] && l.description == description && l.full == full {
			return l.triggerID
		}
	}
	for _, l := range linked {
		if claimed[l.triggerID] || l.full != full {
			continue
		}
		if strings.TrimSpace(r.macros.Text(l.stored, rec)) == l.description {
			return l.triggerID
		}
	}
	for _, l := range linked {
		if !claimed[l.triggerID] && sameKeys(l.itemKeys, itemKeys) {
			return l.triggerID
		}
	}
	return 0
}

// hostTriggerExists reports whether a trigger other than triggerID on the rule's
// host has the same description and expanded expression.
func (r *run) hostTriggerExists(ctx context.Context, description, full string, triggerID int64) (bool, error) {
	triggers, err := r.q.ListHostTriggersByDescription(ctx, r.rule.HostID, description)
	if err != nil {
		return false, fmt.Errorf("list host triggers %q: %w", description, err)
	}
	var ids []int64
	for _, t := range triggers {
		if t.TriggerID != triggerID {
			ids = append(ids, t.TriggerID)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	byTrigger, err := r.functionsByTrigger(ctx, ids)
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if t.TriggerID == triggerID {
			continue
		}
		if ExpandExpression(t.Expression, functionTable(byTrigger[t.TriggerID])) == full {
			return true, nil
		}
	}
	return false, nil
}

// saveTriggers writes part in one batch. Functions of updated triggers are
// replaced, and every expression is rewritten to the new function ids.
func (r *run) saveTriggers(ctx context.Context, proto sqlcgen.Trigger, part []*triggerCandidate) error {
	var newTriggers, newFuncs int
	for _, c := range part {
		if c.isNew {
			newTriggers++
		}
		newFuncs += len(c.functions)
	}

	nextTrigger, err := r.reserve(ctx, "triggers", newTriggers)
	if err != nil {
		return err
	}
	nextLink, err := r.reserve(ctx, "trigger_discovery", newTriggers)
	if err != nil {
		return err
	}
	nextFunc, err := r.reserve(ctx, "functions", newFuncs)
	if err != nil {
		return err
	}

	var arg sqlcgen.SaveTriggersParams
	ids := make([]int64, len(part))
	for i, c := range part {
		t := c.trigger
		if c.isNew {
			t.TriggerID = nextTrigger
			nextTrigger++
			arg.NewLinks = append(arg.NewLinks, sqlcgen.TriggerDiscovery{
				TriggerDiscoveryID: nextLink,
				TriggerID:          t.TriggerID,
				ParentTriggerID:    proto.TriggerID,
				Name:               proto.Description,
				Lastcheck:          r.lastcheck,
			})
			nextLink++
		} else {
			arg.ReplacedOf = append(arg.ReplacedOf, t.TriggerID)
			arg.RefreshedLinks = append(arg.RefreshedLinks, sqlcgen.TriggerDiscovery{
				TriggerID:       t.TriggerID,
				ParentTriggerID: proto.TriggerID,
				Name:            proto.Description,
				Lastcheck:       r.lastcheck,
			})
		}
		ids[i] = t.TriggerID

		remap := make(map[int64]int64, len(c.functions))
		for _, f := range c.functions {
			remap[f.FunctionID] = nextFunc
			f.FunctionID = nextFunc
			f.TriggerID = t.TriggerID
			arg.NewFunctions = append(arg.NewFunctions, f)
			nextFunc++
		}
		t.Expression = remapFunctionIDs(c.trigger.Expression, remap)

		if c.isNew {
			arg.Inserts = append(arg.Inserts, t)
		} else {
			arg.Updates = append(arg.Updates, t)
		}
	}

	if err := r.q.SaveTriggers(ctx, arg); err != nil {
		return fmt.Errorf("save triggers: %w", err)
	}
	for i, c := range part {
		c.trigger.TriggerID = ids[i]
	}
	return nil
}

func functionTable(funcs []sqlcgen.Function) FunctionTable {
	refs := make([]FunctionRef, 0, len(funcs))
	for _, f := range funcs {
		refs = append(refs, FunctionRef{
			FunctionID: f.FunctionID,
			Host:       f.Host,
			Key:        f.Key,
			Function:   f.Function,
			Parameter:  f.Parameter,
		})
	}
	return NewFunctionTable(refs)
}

// itemKeysInOrder lists the item keys read by the functions of expr, in the
// order the functions first appear.
func itemKeysInOrder(expr string, funcs []sqlcgen.Function) []string {
	byID := make(map[int64]string, len(funcs))
	for _, f := range funcs {
		byID[f.FunctionID] = f.Key
	}
	var keys []string
	for _, id := range functionIDs(expr) {
		if key, ok := byID[id]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func sameKeys(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
