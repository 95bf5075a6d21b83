package lld

import (
	"context"

	"lldsync/core-go/internal/sqlcgen"
)

// Queries is the store interface the reconciliation engine needs.
//
// *sqlcgen.Queries satisfies it. Lookups that find nothing return
// pgx.ErrNoRows; writes colliding with a unique constraint return an error
// wrapping sqlcgen.ErrUniqueViolation and leave the transaction usable.
type Queries interface {
	// LockDiscoveryRule reads the rule and locks it for the rest of the
	// transaction.
	LockDiscoveryRule(ctx context.Context, itemID int64) (sqlcgen.DiscoveryRule, error)
	UpdateDiscoveryRuleState(ctx context.Context, arg sqlcgen.UpdateDiscoveryRuleStateParams) error
	ListRegexpExpressions(ctx context.Context, name string) ([]sqlcgen.RegexpExpression, error)
	ListUserMacros(ctx context.Context, hostID int64) ([]sqlcgen.UserMacro, error)
	ReserveIDs(ctx context.Context, table string, count int) (int64, error)

	FindItemIDByKey(ctx context.Context, hostID int64, key string) (int64, error)
	ListItemsByID(ctx context.Context, itemIDs []int64) ([]sqlcgen.ItemRef, error)

	ListItemPrototypes(ctx context.Context, ruleID int64) ([]sqlcgen.Item, error)
	ListItemLinks(ctx context.Context, prototypeID int64) ([]sqlcgen.ItemLink, error)
	ListItemApplications(ctx context.Context, itemIDs []int64) ([]sqlcgen.ItemApplication, error)
	SaveItems(ctx context.Context, arg sqlcgen.SaveItemsParams) error

	ListTriggerPrototypes(ctx context.Context, ruleID int64) ([]sqlcgen.Trigger, error)
	ListHostTriggersByDescription(ctx context.Context, hostID int64, description string) ([]sqlcgen.Trigger, error)
	ListFunctions(ctx context.Context, triggerIDs []int64) ([]sqlcgen.Function, error)
	ListTriggerLinks(ctx context.Context, prototypeID int64) ([]sqlcgen.TriggerLink, error)
	SaveTriggers(ctx context.Context, arg sqlcgen.SaveTriggersParams) error

	ListGraphPrototypes(ctx context.Context, ruleID int64) ([]sqlcgen.Graph, error)
	ListGraphItems(ctx context.Context, graphIDs []int64) ([]sqlcgen.GraphItem, error)
	ListGraphLinks(ctx context.Context, prototypeID int64) ([]sqlcgen.GraphLink, error)
	ListHostGraphIDsByName(ctx context.Context, hostID int64, name string) ([]int64, error)
	SaveGraphs(ctx context.Context, arg sqlcgen.SaveGraphsParams) error

	ListLostLinks(ctx context.Context, kind sqlcgen.EntityKind, ruleID int64, lastcheck int64) ([]sqlcgen.DiscoveryLink, error)
	ScheduleDeletion(ctx context.Context, kind sqlcgen.EntityKind, arg []sqlcgen.DeletionSchedule) error
	DeleteItems(ctx context.Context, itemIDs []int64) error
	DeleteTriggers(ctx context.Context, triggerIDs []int64) error
	DeleteGraphs(ctx context.Context, graphIDs []int64) error
}

// Store runs a function inside one store transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

// StoreFunc adapts a plain function to Store.
type StoreFunc func(ctx context.Context, fn func(q Queries) error) error

func (f StoreFunc) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	return f(ctx, fn)
}
