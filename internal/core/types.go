package core

import (
	"binmap/internal/reflow"
	"binmap/pkg/domain"
)

// Orientation re-exports the split direction.
type Orientation = reflow.Orientation

// Split orientations.
const (
	Vertical   = reflow.Vertical
	Horizontal = reflow.Horizontal
)

// Layout is the full geometry of a blueprint.
type Layout struct {
	Blueprint    domain.Blueprint     `json:"blueprint"`
	Lock         domain.LockState     `json:"lock"`
	Drawers      []domain.Drawer      `json:"drawers"`
	Compartments []domain.Compartment `json:"compartments"`
}

// DrawerInput describes a new drawer. A positive GridRows x GridCols
// partitions it into empty compartments on creation.
type DrawerInput struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ZIndex   *int    `json:"z_index,omitempty"`
	Label    *string `json:"label,omitempty"`
	GridRows int     `json:"grid_rows,omitempty"`
	GridCols int     `json:"grid_cols,omitempty"`
}

// DrawerPatch moves, resizes, rotates or relabels a drawer. Nil fields are
// left unchanged.
type DrawerPatch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ZIndex   *int     `json:"z_index,omitempty"`
	Label    *string  `json:"label,omitempty"`
}

// CompartmentInput describes a freehand compartment relative to its drawer.
type CompartmentInput struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ZIndex   *int    `json:"z_index,omitempty"`
	Label    *string `json:"label,omitempty"`
}

// CompartmentPatch edits a compartment. DrawerID reassigns it to another
// drawer of the same blueprint.
type CompartmentPatch struct {
	DrawerID *string  `json:"drawer_id,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ZIndex   *int     `json:"z_index,omitempty"`
	Label    *string  `json:"label,omitempty"`
}

// GridResult reports the outcome of SetGrid.
type GridResult struct {
	Drawer       domain.Drawer        `json:"drawer"`
	Compartments []domain.Compartment `json:"compartments"`
	Created      []string             `json:"created"`
	Deleted      []string             `json:"deleted"`
}

// SplitResult reports the two halves of a split. Removed is empty when an
// empty drawer was split.
type SplitResult struct {
	First   domain.Compartment `json:"first"`
	Second  domain.Compartment `json:"second"`
	Removed string             `json:"removed,omitempty"`
}

// DeleteResult summarises a cascading delete.
type DeleteResult struct {
	Drawers          int `json:"drawers"`
	Compartments     int `json:"compartments"`
	Revisions        int `json:"revisions"`
	InventoryRemoved int `json:"inventory_removed"`
}

// RestoreResult reports a revision restore.
type RestoreResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	BackupRevisionID string `json:"backup_revision_id"`
	NewRevisionID    string `json:"new_revision_id"`
}

// RevisionCount reports ledger occupancy.
type RevisionCount struct {
	Count     int  `json:"count"`
	Max       int  `json:"max"`
	NearLimit bool `json:"near_limit"`
}

// RevisionPreview is a read-only view of a revision's geometry.
type RevisionPreview struct {
	Revision         domain.BlueprintRevision `json:"revision"`
	DrawerCount      int                      `json:"drawer_count"`
	CompartmentCount int                      `json:"compartment_count"`
}

// PartInput describes a catalogue entry.
type PartInput struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// PartPatch renames or redescribes a part. Nil fields are left unchanged.
type PartPatch struct {
	SKU         *string `json:"sku,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// StockChange is the argument of CheckIn and CheckOut.
type StockChange struct {
	PartID        string  `json:"part_id"`
	CompartmentID string  `json:"compartment_id"`
	Quantity      int     `json:"quantity"`
	Notes         *string `json:"notes,omitempty"`
}

// StockMove is the argument of Move.
type StockMove struct {
	PartID            string  `json:"part_id"`
	SourceCompartment string  `json:"source_compartment_id"`
	DestCompartment   string  `json:"dest_compartment_id"`
	Quantity          int     `json:"quantity"`
	Notes             *string `json:"notes,omitempty"`
}

// StockAdjustment sets an absolute quantity.
type StockAdjustment struct {
	PartID        string  `json:"part_id"`
	CompartmentID string  `json:"compartment_id"`
	NewQuantity   int     `json:"new_quantity"`
	Notes         *string `json:"notes,omitempty"`
}

// StockResult pairs the affected rows with the audit record.
type StockResult struct {
	Inventory   []domain.Inventory          `json:"inventory"`
	Transaction domain.InventoryTransaction `json:"transaction"`
}
