// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by binmap.
package domain

import "time"

// EntityType identifies the type of record stored in the document store.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBlueprint identifies a blueprint layout record.
	EntityBlueprint EntityType = "blueprint"
	// EntityDrawer identifies a drawer placed on a blueprint.
	EntityDrawer EntityType = "drawer"
	// EntityCompartment identifies a compartment inside a drawer.
	EntityCompartment EntityType = "compartment"
	// EntityPart identifies a part catalogue record.
	EntityPart EntityType = "part"
	// EntityInventory identifies a quantity of a part held in a compartment.
	EntityInventory EntityType = "inventory"
	// EntityTransaction identifies an immutable inventory movement record.
	EntityTransaction EntityType = "transaction"
	// EntityRevision identifies a blueprint geometry snapshot.
	EntityRevision EntityType = "revision"
)

// Layout constants shared by the reflow engine and the revision ledger.
const (
	// GridSize is the minimum span, in blueprint units, of any split half and
	// the margin a split line must keep from a compartment edge.
	GridSize = 50.0
	// DefaultMaxRevisions bounds the number of live revisions kept per blueprint.
	DefaultMaxRevisions = 50
	// RevisionNearLimitMargin flags a ledger as near its limit once
	// count >= max - margin.
	RevisionNearLimitMargin = 5
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blueprint is a named spatial layout owned by an organization.
type Blueprint struct {
	Base
	OrgID             string     `json:"org_id"`
	Name              string     `json:"name"`
	LockedBy          *string    `json:"locked_by,omitempty"`
	LockTimestamp     *time.Time `json:"lock_timestamp,omitempty"`
	BackgroundImageID *string    `json:"background_image_id,omitempty"`
	// LayoutDirty is set by every geometry mutation and cleared when a
	// revision captures the layout.
	LayoutDirty bool `json:"layout_dirty"`
	// LastRevisionVersion is the highest revision version ever issued for the
	// blueprint, including evicted and deleted revisions.
	LastRevisionVersion int `json:"last_revision_version"`
}

// Drawer is a rectangular region of a blueprint. X and Y are the centre in
// blueprint space.
type Drawer struct {
	Base
	BlueprintID string  `json:"blueprint_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Rotation    float64 `json:"rotation"`
	ZIndex      int     `json:"z_index"`
	GridRows    *int    `json:"grid_rows,omitempty"`
	GridCols    *int    `json:"grid_cols,omitempty"`
	Label       *string `json:"label,omitempty"`
}

// HasGrid reports whether the drawer is managed by a rows x cols partition.
func (d Drawer) HasGrid() bool {
	return d.GridRows != nil && d.GridCols != nil && *d.GridRows > 0 && *d.GridCols > 0
}

// Compartment is the smallest storage unit. X and Y are relative to the
// parent drawer's centre.
type Compartment struct {
	Base
	DrawerID string  `json:"drawer_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
	Label    *string `json:"label,omitempty"`
}

// Part is a catalogue entry whose stock is tracked per compartment.
type Part struct {
	Base
	OrgID       string  `json:"org_id"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Inventory records the quantity of one part held in one compartment.
type Inventory struct {
	Base
	PartID        string `json:"part_id"`
	CompartmentID string `json:"compartment_id"`
	Quantity      int    `json:"quantity"`
	OrgID         string `json:"org_id"`
}

// TransactionAction enumerates inventory movement kinds.
type TransactionAction string

// Inventory movement kinds recorded in the audit trail.
const (
	TransactionAdd    TransactionAction = "Add"
	TransactionRemove TransactionAction = "Remove"
	TransactionMove   TransactionAction = "Move"
	TransactionAdjust TransactionAction = "Adjust"
)

// InventoryTransaction is an append-only audit record of a quantity change.
type InventoryTransaction struct {
	ID                  string            `json:"id"`
	ActionType          TransactionAction `json:"action_type"`
	QuantityDelta       int               `json:"quantity_delta"`
	SourceCompartmentID *string           `json:"source_compartment_id,omitempty"`
	DestCompartmentID   *string           `json:"dest_compartment_id,omitempty"`
	PartID              string            `json:"part_id"`
	UserID              string            `json:"user_id"`
	Timestamp           time.Time         `json:"timestamp"`
	Notes               *string           `json:"notes,omitempty"`
	OrgID               string            `json:"org_id"`
}

// DrawerSnapshot is the geometry of a drawer captured in a revision.
type DrawerSnapshot struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
	GridRows *int    `json:"grid_rows,omitempty"`
	GridCols *int    `json:"grid_cols,omitempty"`
	Label    *string `json:"label,omitempty"`
}

// CompartmentSnapshot is the geometry of a compartment captured in a revision.
type CompartmentSnapshot struct {
	ID       string  `json:"id"`
	DrawerID string  `json:"drawer_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
	Label    *string `json:"label,omitempty"`
}

// RevisionState is the full geometry of a blueprint at one point in time.
type RevisionState struct {
	Drawers      []DrawerSnapshot      `json:"drawers"`
	Compartments []CompartmentSnapshot `json:"compartments"`
}

// Clone returns a deep copy of the state.
func (s RevisionState) Clone() RevisionState {
	out := RevisionState{
		Drawers:      make([]DrawerSnapshot, len(s.Drawers)),
		Compartments: make([]CompartmentSnapshot, len(s.Compartments)),
	}
	for i, d := range s.Drawers {
		d.GridRows = cloneIntPtr(d.GridRows)
		d.GridCols = cloneIntPtr(d.GridCols)
		d.Label = cloneStringPtr(d.Label)
		out.Drawers[i] = d
	}
	for i, c := range s.Compartments {
		c.Label = cloneStringPtr(c.Label)
		out.Compartments[i] = c
	}
	return out
}

// BlueprintRevision is a versioned snapshot of a blueprint's geometry.
type BlueprintRevision struct {
	ID          string        `json:"id"`
	BlueprintID string        `json:"blueprint_id"`
	Version     int           `json:"version"`
	State       RevisionState `json:"state"`
	Description *string       `json:"description,omitempty"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	OrgID       string        `json:"org_id"`
}

// Change represents a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
