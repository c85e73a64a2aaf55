package memory

import (
	"errors"
	"fmt"
	"time"

	"binmap/pkg/domain"
)

// transaction represents a mutation set applied to a copy of the store state.
type transaction struct {
	transactionView
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return transactionView{state: &tx.state}
}

// Now returns the timestamp shared by every write of the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// CreateBlueprint stores a new blueprint.
func (tx *transaction) CreateBlueprint(b domain.Blueprint) (domain.Blueprint, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	if _, exists := tx.state.blueprints[b.ID]; exists {
		return domain.Blueprint{}, fmt.Errorf("blueprint %q already exists", b.ID)
	}
	if b.OrgID == "" {
		return domain.Blueprint{}, errors.New("blueprint requires org id")
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.blueprints[b.ID] = cloneBlueprint(b)
	tx.recordChange(domain.Change{Entity: domain.EntityBlueprint, Action: domain.ActionCreate, After: cloneBlueprint(b)})
	return cloneBlueprint(b), nil
}

// UpdateBlueprint mutates a blueprint using the provided mutator function.
func (tx *transaction) UpdateBlueprint(id string, mutator func(*domain.Blueprint) error) (domain.Blueprint, error) {
	current, ok := tx.state.blueprints[id]
	if !ok {
		return domain.Blueprint{}, domain.NotFound(domain.EntityBlueprint, id)
	}
	before := cloneBlueprint(current)
	if err := mutator(&current); err != nil {
		return domain.Blueprint{}, err
	}
	current.ID = id
	current.OrgID = before.OrgID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.blueprints[id] = cloneBlueprint(current)
	tx.recordChange(domain.Change{Entity: domain.EntityBlueprint, Action: domain.ActionUpdate, Before: before, After: cloneBlueprint(current)})
	return cloneBlueprint(current), nil
}

// DeleteBlueprint removes a blueprint that no longer owns drawers or revisions.
func (tx *transaction) DeleteBlueprint(id string) error {
	current, ok := tx.state.blueprints[id]
	if !ok {
		return domain.NotFound(domain.EntityBlueprint, id)
	}
	for _, d := range tx.state.drawers {
		if d.BlueprintID == id {
			return fmt.Errorf("blueprint %q still owns drawer %q", id, d.ID)
		}
	}
	for _, r := range tx.state.revisions {
		if r.BlueprintID == id {
			return fmt.Errorf("blueprint %q still owns revision %q", id, r.ID)
		}
	}
	delete(tx.state.blueprints, id)
	tx.recordChange(domain.Change{Entity: domain.EntityBlueprint, Action: domain.ActionDelete, Before: cloneBlueprint(current)})
	return nil
}

// CreateDrawer stores a new drawer on an existing blueprint.
func (tx *transaction) CreateDrawer(d domain.Drawer) (domain.Drawer, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if _, exists := tx.state.drawers[d.ID]; exists {
		return domain.Drawer{}, fmt.Errorf("drawer %q already exists", d.ID)
	}
	if _, ok := tx.state.blueprints[d.BlueprintID]; !ok {
		return domain.Drawer{}, domain.NotFound(domain.EntityBlueprint, d.BlueprintID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.drawers[d.ID] = cloneDrawer(d)
	tx.recordChange(domain.Change{Entity: domain.EntityDrawer, Action: domain.ActionCreate, After: cloneDrawer(d)})
	return cloneDrawer(d), nil
}

// UpdateDrawer mutates an existing drawer. A drawer never changes blueprint.
func (tx *transaction) UpdateDrawer(id string, mutator func(*domain.Drawer) error) (domain.Drawer, error) {
	current, ok := tx.state.drawers[id]
	if !ok {
		return domain.Drawer{}, domain.NotFound(domain.EntityDrawer, id)
	}
	before := cloneDrawer(current)
	if err := mutator(&current); err != nil {
		return domain.Drawer{}, err
	}
	current.ID = id
	current.BlueprintID = before.BlueprintID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.drawers[id] = cloneDrawer(current)
	tx.recordChange(domain.Change{Entity: domain.EntityDrawer, Action: domain.ActionUpdate, Before: before, After: cloneDrawer(current)})
	return cloneDrawer(current), nil
}

// DeleteDrawer removes a drawer that no longer holds compartments.
func (tx *transaction) DeleteDrawer(id string) error {
	current, ok := tx.state.drawers[id]
	if !ok {
		return domain.NotFound(domain.EntityDrawer, id)
	}
	for _, c := range tx.state.compartments {
		if c.DrawerID == id {
			return fmt.Errorf("drawer %q still holds compartment %q", id, c.ID)
		}
	}
	delete(tx.state.drawers, id)
	tx.recordChange(domain.Change{Entity: domain.EntityDrawer, Action: domain.ActionDelete, Before: cloneDrawer(current)})
	return nil
}

// CreateCompartment stores a new compartment inside an existing drawer.
func (tx *transaction) CreateCompartment(c domain.Compartment) (domain.Compartment, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.compartments[c.ID]; exists {
		return domain.Compartment{}, fmt.Errorf("compartment %q already exists", c.ID)
	}
	if _, ok := tx.state.drawers[c.DrawerID]; !ok {
		return domain.Compartment{}, domain.NotFound(domain.EntityDrawer, c.DrawerID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.compartments[c.ID] = cloneCompartment(c)
	tx.recordChange(domain.Change{Entity: domain.EntityCompartment, Action: domain.ActionCreate, After: cloneCompartment(c)})
	return cloneCompartment(c), nil
}

// UpdateCompartment mutates a compartment. Reassignment must target an
// existing drawer.
func (tx *transaction) UpdateCompartment(id string, mutator func(*domain.Compartment) error) (domain.Compartment, error) {
	current, ok := tx.state.compartments[id]
	if !ok {
		return domain.Compartment{}, domain.NotFound(domain.EntityCompartment, id)
	}
	before := cloneCompartment(current)
	if err := mutator(&current); err != nil {
		return domain.Compartment{}, err
	}
	if _, ok := tx.state.drawers[current.DrawerID]; !ok {
		return domain.Compartment{}, domain.NotFound(domain.EntityDrawer, current.DrawerID)
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.compartments[id] = cloneCompartment(current)
	tx.recordChange(domain.Change{Entity: domain.EntityCompartment, Action: domain.ActionUpdate, Before: before, After: cloneCompartment(current)})
	return cloneCompartment(current), nil
}

// DeleteCompartment removes a compartment no inventory row references.
func (tx *transaction) DeleteCompartment(id string) error {
	current, ok := tx.state.compartments[id]
	if !ok {
		return domain.NotFound(domain.EntityCompartment, id)
	}
	for _, row := range tx.state.inventory {
		if row.CompartmentID == id {
			return fmt.Errorf("compartment %q still referenced by inventory %q", id, row.ID)
		}
	}
	delete(tx.state.compartments, id)
	tx.recordChange(domain.Change{Entity: domain.EntityCompartment, Action: domain.ActionDelete, Before: cloneCompartment(current)})
	return nil
}

// CreatePart stores a catalogue entry. SKUs are unique per organization.
func (tx *transaction) CreatePart(p domain.Part) (domain.Part, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.parts[p.ID]; exists {
		return domain.Part{}, fmt.Errorf("part %q already exists", p.ID)
	}
	if _, dup := tx.PartBySKU(p.OrgID, p.SKU); dup {
		return domain.Part{}, domain.Validation("sku %q already exists", p.SKU)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.parts[p.ID] = clonePart(p)
	tx.recordChange(domain.Change{Entity: domain.EntityPart, Action: domain.ActionCreate, After: clonePart(p)})
	return clonePart(p), nil
}

// UpdatePart mutates a catalogue entry.
func (tx *transaction) UpdatePart(id string, mutator func(*domain.Part) error) (domain.Part, error) {
	current, ok := tx.state.parts[id]
	if !ok {
		return domain.Part{}, domain.NotFound(domain.EntityPart, id)
	}
	before := clonePart(current)
	if err := mutator(&current); err != nil {
		return domain.Part{}, err
	}
	if current.SKU != before.SKU {
		if other, dup := tx.PartBySKU(before.OrgID, current.SKU); dup && other.ID != id {
			return domain.Part{}, domain.Validation("sku %q already exists", current.SKU)
		}
	}
	current.ID = id
	current.OrgID = before.OrgID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.parts[id] = clonePart(current)
	tx.recordChange(domain.Change{Entity: domain.EntityPart, Action: domain.ActionUpdate, Before: before, After: clonePart(current)})
	return clonePart(current), nil
}

// DeletePart removes a catalogue entry with no inventory rows.
func (tx *transaction) DeletePart(id string) error {
	current, ok := tx.state.parts[id]
	if !ok {
		return domain.NotFound(domain.EntityPart, id)
	}
	for _, row := range tx.state.inventory {
		if row.PartID == id {
			return fmt.Errorf("part %q still referenced by inventory %q", id, row.ID)
		}
	}
	delete(tx.state.parts, id)
	tx.recordChange(domain.Change{Entity: domain.EntityPart, Action: domain.ActionDelete, Before: clonePart(current)})
	return nil
}

// CreateInventory stores the row for a (part, compartment) pair.
func (tx *transaction) CreateInventory(row domain.Inventory) (domain.Inventory, error) {
	if row.ID == "" {
		row.ID = newID()
	}
	if _, exists := tx.state.inventory[row.ID]; exists {
		return domain.Inventory{}, fmt.Errorf("inventory %q already exists", row.ID)
	}
	if _, ok := tx.state.parts[row.PartID]; !ok {
		return domain.Inventory{}, domain.NotFound(domain.EntityPart, row.PartID)
	}
	if _, ok := tx.state.compartments[row.CompartmentID]; !ok {
		return domain.Inventory{}, domain.NotFound(domain.EntityCompartment, row.CompartmentID)
	}
	if existing, dup := tx.InventoryFor(row.PartID, row.CompartmentID); dup {
		return domain.Inventory{}, fmt.Errorf("inventory for part %q in compartment %q already exists as %q", row.PartID, row.CompartmentID, existing.ID)
	}
	row.CreatedAt = tx.now
	row.UpdatedAt = tx.now
	tx.state.inventory[row.ID] = row
	tx.recordChange(domain.Change{Entity: domain.EntityInventory, Action: domain.ActionCreate, After: row})
	return row, nil
}

// UpdateInventory mutates the quantity of an inventory row. Part and
// compartment are fixed once created.
func (tx *transaction) UpdateInventory(id string, mutator func(*domain.Inventory) error) (domain.Inventory, error) {
	current, ok := tx.state.inventory[id]
	if !ok {
		return domain.Inventory{}, domain.NotFound(domain.EntityInventory, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Inventory{}, err
	}
	current.ID = id
	current.PartID = before.PartID
	current.CompartmentID = before.CompartmentID
	current.OrgID = before.OrgID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.inventory[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityInventory, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteInventory removes an inventory row.
func (tx *transaction) DeleteInventory(id string) error {
	current, ok := tx.state.inventory[id]
	if !ok {
		return domain.NotFound(domain.EntityInventory, id)
	}
	delete(tx.state.inventory, id)
	tx.recordChange(domain.Change{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: current})
	return nil
}

// AppendTransaction records an immutable inventory movement.
func (tx *transaction) AppendTransaction(t domain.InventoryTransaction) (domain.InventoryTransaction, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.transactions[t.ID]; exists {
		return domain.InventoryTransaction{}, fmt.Errorf("transaction %q already exists", t.ID)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = tx.now
	}
	tx.state.transactions[t.ID] = cloneTransaction(t)
	tx.recordChange(domain.Change{Entity: domain.EntityTransaction, Action: domain.ActionCreate, After: cloneTransaction(t)})
	return cloneTransaction(t), nil
}

// CreateRevision stores a blueprint revision. Versions must be unique per
// blueprint.
func (tx *transaction) CreateRevision(r domain.BlueprintRevision) (domain.BlueprintRevision, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.revisions[r.ID]; exists {
		return domain.BlueprintRevision{}, fmt.Errorf("revision %q already exists", r.ID)
	}
	if _, ok := tx.state.blueprints[r.BlueprintID]; !ok {
		return domain.BlueprintRevision{}, domain.NotFound(domain.EntityBlueprint, r.BlueprintID)
	}
	if r.Version < 1 {
		return domain.BlueprintRevision{}, fmt.Errorf("revision version must be positive, got %d", r.Version)
	}
	for _, existing := range tx.state.revisions {
		if existing.BlueprintID == r.BlueprintID && existing.Version == r.Version {
			return domain.BlueprintRevision{}, fmt.Errorf("revision v%d already exists for blueprint %q", r.Version, r.BlueprintID)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	tx.state.revisions[r.ID] = cloneRevision(r)
	tx.recordChange(domain.Change{Entity: domain.EntityRevision, Action: domain.ActionCreate, After: cloneRevision(r)})
	return cloneRevision(r), nil
}

// DeleteRevision removes a revision.
func (tx *transaction) DeleteRevision(id string) error {
	current, ok := tx.state.revisions[id]
	if !ok {
		return domain.NotFound(domain.EntityRevision, id)
	}
	delete(tx.state.revisions, id)
	tx.recordChange(domain.Change{Entity: domain.EntityRevision, Action: domain.ActionDelete, Before: cloneRevision(current)})
	return nil
}
