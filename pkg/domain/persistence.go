package domain

import (
	"context"
	"time"
)

// TransactionView provides read-only access to snapshot data. Finder methods
// mirror the secondary indexes of the document store; list results are
// returned in a deterministic order (see each method).
type TransactionView interface {
	FindBlueprint(id string) (Blueprint, bool)
	FindDrawer(id string) (Drawer, bool)
	FindCompartment(id string) (Compartment, bool)
	FindPart(id string) (Part, bool)
	FindInventory(id string) (Inventory, bool)
	FindRevision(id string) (BlueprintRevision, bool)

	// ListBlueprints returns the organization's blueprints ordered by name then id.
	ListBlueprints(orgID string) []Blueprint
	// DrawersByBlueprint returns drawers ordered by zIndex, createdAt, id.
	DrawersByBlueprint(blueprintID string) []Drawer
	// CompartmentsByDrawer returns compartments ordered by zIndex, createdAt, id.
	CompartmentsByDrawer(drawerID string) []Compartment
	// InventoryByCompartment returns inventory rows ordered by part id.
	InventoryByCompartment(compartmentID string) []Inventory
	// InventoryByPart returns inventory rows ordered by compartment id.
	InventoryByPart(partID string) []Inventory
	// InventoryFor looks up the unique row for (partID, compartmentID).
	InventoryFor(partID, compartmentID string) (Inventory, bool)
	// RevisionsByBlueprint returns revisions ordered by ascending version.
	RevisionsByBlueprint(blueprintID string) []BlueprintRevision
	// PartBySKU looks up a part by its organization-scoped SKU.
	PartBySKU(orgID, sku string) (Part, bool)
	// ListParts returns the organization's parts ordered by SKU.
	ListParts(orgID string) []Part
	// TransactionsByOrg returns the organization's audit trail ordered by timestamp then id.
	TransactionsByOrg(orgID string) []InventoryTransaction
}

// Transaction exposes the document store operations a persistence
// implementation must support within an atomic scope. Every write made through
// a Transaction is visible to later reads of the same Transaction.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	Now() time.Time

	CreateBlueprint(Blueprint) (Blueprint, error)
	UpdateBlueprint(id string, mutator func(*Blueprint) error) (Blueprint, error)
	DeleteBlueprint(id string) error

	CreateDrawer(Drawer) (Drawer, error)
	UpdateDrawer(id string, mutator func(*Drawer) error) (Drawer, error)
	DeleteDrawer(id string) error

	CreateCompartment(Compartment) (Compartment, error)
	UpdateCompartment(id string, mutator func(*Compartment) error) (Compartment, error)
	DeleteCompartment(id string) error

	CreatePart(Part) (Part, error)
	UpdatePart(id string, mutator func(*Part) error) (Part, error)
	DeletePart(id string) error

	CreateInventory(Inventory) (Inventory, error)
	UpdateInventory(id string, mutator func(*Inventory) error) (Inventory, error)
	DeleteInventory(id string) error

	AppendTransaction(InventoryTransaction) (InventoryTransaction, error)

	CreateRevision(BlueprintRevision) (BlueprintRevision, error)
	DeleteRevision(id string) error
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
}
