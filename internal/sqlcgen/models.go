package sqlcgen

import "time"

// Item, trigger and graph flags.
const (
	FlagNormal    int16 = 0
	FlagRule      int16 = 1
	FlagPrototype int16 = 2
	FlagCreated   int16 = 4
)

// Discovery rule status values.
const (
	StatusActive       int16 = 0
	StatusNotSupported int16 = 3
)

// Graph Y axis types.
const (
	GraphYAxisCalculated int16 = 0
	GraphYAxisFixed      int16 = 1
	GraphYAxisItemValue  int16 = 2
)

// EntityKind names one of the three discovered entity kinds.
type EntityKind string

const (
	KindItem    EntityKind = "item"
	KindTrigger EntityKind = "trigger"
	KindGraph   EntityKind = "graph"
)

type DiscoveryRule struct {
	ItemID   int64
	HostID   int64
	Host     string
	Key      string
	Status   int16
	Filter   string
	Lifetime string
	Error    string
}

type Item struct {
	ItemID      int64
	HostID      int64
	Name        string
	Key         string
	Type        int32
	ValueType   int32
	Delay       int32
	History     int32
	Trends      int32
	Status      int16
	Units       string
	Params      string
	SNMPOID     string
	IPMISensor  string
	Description string
	Flags       int16
}

// ItemRef is the identifying subset of an item row.
type ItemRef struct {
	ItemID int64
	Key    string
	Flags  int16
}

// ItemLink is a discovered item seen through its item_discovery row.
type ItemLink struct {
	ItemID    int64
	StoredKey string
	Key       string
}

type ItemApplication struct {
	ItemAppID     int64
	ApplicationID int64
	ItemID        int64
}

type ItemDiscovery struct {
	ItemDiscoveryID int64
	ItemID          int64
	ParentItemID    int64
	Key             string
	Lastcheck       int64
}

type Trigger struct {
	TriggerID   int64
	Description string
	Expression  string
	URL         string
	Comments    string
	Status      int16
	Priority    int16
	Type        int16
	Flags       int16
}

// TriggerLink is a discovered trigger seen through its trigger_discovery row.
type TriggerLink struct {
	TriggerID         int64
	StoredDescription string
	Description       string
	Expression        string
}

// Function is a functions row joined with its item and host.
type Function struct {
	FunctionID int64
	TriggerID  int64
	ItemID     int64
	Host       string
	Key        string
	ItemFlags  int16
	Function   string
	Parameter  string
}

type TriggerDiscovery struct {
	TriggerDiscoveryID int64
	TriggerID          int64
	ParentTriggerID    int64
	Name               string
	Lastcheck          int64
}

type Graph struct {
	GraphID        int64
	Name           string
	Width          int32
	Height         int32
	YAxisMin       float64
	YAxisMax       float64
	ShowWorkPeriod int16
	ShowTriggers   int16
	GraphType      int16
	ShowLegend     int16
	Show3D         int16
	PercentLeft    float64
	PercentRight   float64
	YMinType       int16
	YMaxType       int16
	YMinItemID     *int64
	YMaxItemID     *int64
	Flags          int16
}

// GraphItem is a graphs_items row joined with its item.
type GraphItem struct {
	GItemID   int64
	GraphID   int64
	ItemID    int64
	Key       string
	ItemFlags int16
	DrawType  int32
	SortOrder int32
	Color     string
	YAxisSide int16
	CalcFnc   int16
	Type      int16
}

// GraphLink is a discovered graph seen through its graph_discovery row.
type GraphLink struct {
	GraphID    int64
	StoredName string
	Name       string
}

type GraphDiscovery struct {
	GraphDiscoveryID int64
	GraphID          int64
	ParentGraphID    int64
	Name             string
	Lastcheck        int64
}

// DiscoveryLink is the lifecycle view of any discovery link row.
type DiscoveryLink struct {
	EntityID  int64
	ParentID  int64
	Lastcheck int64
	TsDelete  int64
}

// DeletionSchedule sets ts_delete on one discovery link.
type DeletionSchedule struct {
	EntityID int64
	ParentID int64
	TsDelete int64
}

// RegexpExpression is one expression of a named global regular expression.
type RegexpExpression struct {
	Name           string
	Expression     string
	ExpressionType int16
	Delimiter      string
	CaseSensitive  bool
}

// UserMacro is a host or global user macro; HostID is nil for global macros.
type UserMacro struct {
	HostID *int64
	Macro  string
	Value  string
}

// LLDValue is a queued discovery value awaiting processing.
type LLDValue struct {
	ID        string
	ItemID    int64
	Value     string
	Clock     int64
	NS        int32
	Status    string
	LastError *string
	QueuedAt  time.Time
}
