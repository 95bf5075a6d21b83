package lld

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lldsync/core-go/internal/sqlcgen"
)

const secondsPerDay = 24 * 60 * 60

// reap schedules or deletes the entities of the rule that this run did not
// rediscover. A link missing for the first time, or whose schedule no longer
// matches the lifetime, gets ts_delete = lastcheck + lifetime; a link already
// scheduled that way is deleted once its lastcheck is older than the lifetime.
//
// Triggers and graphs go before items, since deleting an item also removes the
// triggers and graphs that depend on it.
func (r *run) reap(ctx context.Context) error {
	lifetime, ok, err := r.lifetimeSeconds(ctx)
	if err != nil {
		return err
	}
	if !ok {
		r.result.ReaperSkipped = true
		r.log.Warn().Str("lifetime", r.rule.Lifetime).Msg("invalid discovery rule lifetime, lost resources are kept")
		return nil
	}

	for _, kind := range []sqlcgen.EntityKind{sqlcgen.KindTrigger, sqlcgen.KindGraph, sqlcgen.KindItem} {
		if err := r.reapKind(ctx, kind, lifetime); err != nil {
			return fmt.Errorf("reap %ss: %w", kind, err)
		}
	}
	return nil
}

func (r *run) reapKind(ctx context.Context, kind sqlcgen.EntityKind, lifetime int64) error {
	lost, err := r.q.ListLostLinks(ctx, kind, r.rule.ItemID, r.lastcheck)
	if err != nil {
		return fmt.Errorf("list lost links: %w", err)
	}

	var schedule []sqlcgen.DeletionSchedule
	var doomed []int64
	for _, l := range lost {
		deadline := l.Lastcheck + lifetime
		switch {
		case l.TsDelete == 0 || l.TsDelete != deadline:
			schedule = append(schedule, sqlcgen.DeletionSchedule{
				EntityID: l.EntityID,
				ParentID: l.ParentID,
				TsDelete: deadline,
			})
		case deadline < r.lastcheck:
			doomed = append(doomed, l.EntityID)
		}
	}

	if len(schedule) > 0 {
		if err := r.q.ScheduleDeletion(ctx, kind, schedule); err != nil {
			return fmt.Errorf("schedule deletion: %w", err)
		}
	}
	if len(doomed) > 0 {
		var err error
		switch kind {
		case sqlcgen.KindTrigger:
			err = r.q.DeleteTriggers(ctx, doomed)
		case sqlcgen.KindGraph:
			err = r.q.DeleteGraphs(ctx, doomed)
		default:
			err = r.q.DeleteItems(ctx, doomed)
		}
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
	}

	s := r.result.stats(kind)
	s.Scheduled += len(schedule)
	s.Deleted += len(doomed)
	if len(schedule) > 0 || len(doomed) > 0 {
		r.log.Debug().Str("kind", string(kind)).Int("scheduled", len(schedule)).Int("deleted", len(doomed)).Msg("lost resources reaped")
	}
	return nil
}

// lifetimeSeconds resolves the rule lifetime, in days, to seconds. It reports
// false when the lifetime is not an unsigned 16-bit number of days once user
// macros are expanded.
func (r *run) lifetimeSeconds(ctx context.Context) (int64, bool, error) {
	s := r.rule.Lifetime
	if strings.Contains(s, "{$") {
		macros, err := r.q.ListUserMacros(ctx, r.rule.HostID)
		if err != nil {
			return 0, false, fmt.Errorf("list user macros: %w", err)
		}
		hostMacros := make(map[string]string)
		globalMacros := make(map[string]string)
		for _, m := range macros {
			if m.HostID != nil {
				hostMacros[m.Macro] = m.Value
			} else {
				globalMacros[m.Macro] = m.Value
			}
		}
		s = expandUserMacros(s, hostMacros, globalMacros)
	}

	days, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, false, nil
	}
	return int64(days) * secondsPerDay, true, nil
}
