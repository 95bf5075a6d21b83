package lld

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lldsync/core-go/internal/metrics"
	"lldsync/core-go/internal/sqlcgen"
)

type Options struct {
	// Macros expands discovery macros; DiscoveryMacros when nil.
	Macros Substituter
}

// Engine reconciles discovery payloads into discovered items, triggers and
// graphs. A run holds the rule's row lock for its whole transaction, so
// concurrent runs of one rule execute one after the other.
type Engine struct {
	log     zerolog.Logger
	store   Store
	macros  Substituter
	metrics *metrics.Metrics
}

func New(log zerolog.Logger, store Store, opts Options, m *metrics.Metrics) *Engine {
	macros := opts.Macros
	if macros == nil {
		macros = DiscoveryMacros{}
	}
	return &Engine{
		log:     log,
		store:   store,
		macros:  macros,
		metrics: m,
	}
}

// KindStats counts reconciliation outcomes for one entity kind.
type KindStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Rejected  int `json:"rejected"`
	Scheduled int `json:"scheduled"`
	Deleted   int `json:"deleted"`
}

// Result summarizes one discovery run.
type Result struct {
	RunID         string    `json:"run_id"`
	RuleID        int64     `json:"rule_id"`
	Records       int       `json:"records"`
	Accepted      int       `json:"accepted"`
	Items         KindStats `json:"items"`
	Triggers      KindStats `json:"triggers"`
	Graphs        KindStats `json:"graphs"`
	Error         string    `json:"error,omitempty"`
	ReaperSkipped bool      `json:"reaper_skipped,omitempty"`
}

func (r *Result) stats(kind sqlcgen.EntityKind) *KindStats {
	switch kind {
	case sqlcgen.KindTrigger:
		return &r.Triggers
	case sqlcgen.KindGraph:
		return &r.Graphs
	default:
		return &r.Items
	}
}

// ProcessDiscoveryRule reconciles payload, the latest value of discovery rule
// ruleID received at ts, in one store transaction.
//
// A payload that is not a discovery object marks the rule not supported and
// returns an error wrapping ErrInvalidPayload; that state change is committed.
// Rejected candidates are not errors: they are listed in Result.Error and on
// the rule. Any other error rolls the run back.
func (e *Engine) ProcessDiscoveryRule(ctx context.Context, ruleID int64, payload string, ts time.Time) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), RuleID: ruleID}
	log := e.log.With().Str("run_id", res.RunID).Int64("rule_id", ruleID).Logger()

	var payloadErr error
	err := e.store.RunInTx(ctx, func(q Queries) error {
		rule, err := q.LockDiscoveryRule(ctx, ruleID)
		if err != nil {
			return fmt.Errorf("get discovery rule %d: %w", ruleID, err)
		}

		records, err := ParsePayload(payload)
		if err != nil {
			payloadErr = err
			res.Error = err.Error()
			return updateRuleState(ctx, q, rule, sqlcgen.StatusNotSupported, err.Error())
		}
		res.Records = len(records)

		r := &run{
			q:         q,
			log:       log,
			macros:    e.macros,
			rule:      rule,
			lastcheck: ts.Unix(),
			result:    &res,
		}
		if err := r.filterRecords(ctx, records); err != nil {
			return err
		}
		res.Accepted = len(r.records)

		if err := r.reconcileItems(ctx); err != nil {
			return err
		}
		if err := r.reconcileTriggers(ctx); err != nil {
			return err
		}
		if err := r.reconcileGraphs(ctx); err != nil {
			return err
		}
		if err := r.reap(ctx); err != nil {
			return err
		}

		res.Error = renderRejections(r.rejections)
		return updateRuleState(ctx, q, rule, sqlcgen.StatusActive, res.Error)
	})

	e.metrics.ObserveDiscoveryRunDuration(time.Since(start))
	switch {
	case err != nil:
		e.metrics.IncDiscoveryRun("failed")
		log.Error().Err(err).Msg("discovery run failed")
		return Result{RunID: res.RunID, RuleID: ruleID}, err
	case payloadErr != nil:
		e.metrics.IncDiscoveryRun("invalid_payload")
		log.Warn().Str("error", payloadErr.Error()).Msg("discovery payload rejected")
		return res, fmt.Errorf("discovery rule %d: %w", ruleID, payloadErr)
	}

	e.metrics.IncDiscoveryRun("succeeded")
	e.recordEntities(res)
	log.Info().
		Int("records", res.Records).
		Int("accepted", res.Accepted).
		Interface("items", res.Items).
		Interface("triggers", res.Triggers).
		Interface("graphs", res.Graphs).
		Bool("reaper_skipped", res.ReaperSkipped).
		Dur("duration", time.Since(start)).
		Msg("discovery run completed")
	return res, nil
}

func (e *Engine) recordEntities(res Result) {
	for _, kind := range []sqlcgen.EntityKind{sqlcgen.KindItem, sqlcgen.KindTrigger, sqlcgen.KindGraph} {
		s := res.stats(kind)
		e.metrics.AddDiscoveredEntities(string(kind), "created", s.Created)
		e.metrics.AddDiscoveredEntities(string(kind), "updated", s.Updated)
		e.metrics.AddDiscoveredEntities(string(kind), "rejected", s.Rejected)
		e.metrics.AddDiscoveredEntities(string(kind), "scheduled", s.Scheduled)
		e.metrics.AddDiscoveredEntities(string(kind), "deleted", s.Deleted)
	}
}

func updateRuleState(ctx context.Context, q Queries, rule sqlcgen.DiscoveryRule, status int16, msg string) error {
	if rule.Status == status && rule.Error == msg {
		return nil
	}
	err := q.UpdateDiscoveryRuleState(ctx, sqlcgen.UpdateDiscoveryRuleStateParams{
		ItemID: rule.ItemID,
		Status: status,
		Error:  msg,
	})
	if err != nil {
		return fmt.Errorf("update discovery rule %d state: %w", rule.ItemID, err)
	}
	return nil
}

// run is the state of one discovery run inside its transaction.
type run struct {
	q          Queries
	log        zerolog.Logger
	macros     Substituter
	rule       sqlcgen.DiscoveryRule
	records    []Record
	lastcheck  int64
	rejections []*Rejection
	result     *Result
}

func (r *run) filterRecords(ctx context.Context, records []Record) error {
	filter := ParseFilter(r.rule.Filter)

	var regexps *RegexpSet
	if name, ok := filter.GlobalRegexpName(); ok && filter.Macro != "" {
		exprs, err := r.q.ListRegexpExpressions(ctx, name)
		if err != nil {
			return fmt.Errorf("list regexp %q: %w", name, err)
		}
		regexps = NewRegexpSet(exprs)
	}

	r.records = make([]Record, 0, len(records))
	for _, rec := range records {
		if filter.Accepts(rec, regexps) {
			r.records = append(r.records, rec)
		}
	}
	return nil
}

func (r *run) reject(rej *Rejection) {
	r.rejections = append(r.rejections, rej)
	r.result.stats(rej.Kind).Rejected++
	r.log.Debug().Str("kind", string(rej.Kind)).Str("name", rej.Name).Str("reason", rej.Reason).Msg("candidate rejected")
}

// counted records a saved candidate in the run result.
func (r *run) counted(kind sqlcgen.EntityKind, isNew bool) {
	s := r.result.stats(kind)
	if isNew {
		s.Created++
	} else {
		s.Updated++
	}
}

// persist saves batch with one save call. If the store reports a unique
// violation, some other writer took a key after the candidates were checked:
// the candidates are then saved one at a time and those that still collide are
// rejected. It returns the saved candidates.
func persist[C any](ctx context.Context, batch []C, save func(context.Context, []C) error, reject func(C)) ([]C, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	err := save(ctx, batch)
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, sqlcgen.ErrUniqueViolation) {
		return nil, err
	}
	if len(batch) == 1 {
		reject(batch[0])
		return nil, nil
	}

	saved := make([]C, 0, len(batch))
	for _, c := range batch {
		err := save(ctx, []C{c})
		switch {
		case err == nil:
			saved = append(saved, c)
		case errors.Is(err, sqlcgen.ErrUniqueViolation):
			reject(c)
		default:
			return nil, err
		}
	}
	return saved, nil
}

// sortByIdentity orders candidates by entity id, then by key or name. New
// candidates (id 0) come first.
func sortByIdentity[C any](batch []C, id func(C) int64, name func(C) string) {
	sort.SliceStable(batch, func(i, j int) bool {
		a, b := id(batch[i]), id(batch[j])
		if a != b {
			return a < b
		}
		return name(batch[i]) < name(batch[j])
	})
}

// reserve draws count consecutive ids for table, returning 0 when count is 0.
func (r *run) reserve(ctx context.Context, table string, count int) (int64, error) {
	if count == 0 {
		return 0, nil
	}
	first, err := r.q.ReserveIDs(ctx, table, count)
	if err != nil {
		return 0, fmt.Errorf("reserve %d %s ids: %w", count, table, err)
	}
	return first, nil
}
