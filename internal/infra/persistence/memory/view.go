package memory

import (
	"sort"

	"binmap/pkg/domain"
)

// transactionView exposes a read-only view of a state copy. It backs both
// View callers and the rules engine.
type transactionView struct {
	state *memoryState
}

func (v transactionView) FindBlueprint(id string) (domain.Blueprint, bool) {
	b, ok := v.state.blueprints[id]
	if !ok {
		return domain.Blueprint{}, false
	}
	return cloneBlueprint(b), true
}

func (v transactionView) FindDrawer(id string) (domain.Drawer, bool) {
	d, ok := v.state.drawers[id]
	if !ok {
		return domain.Drawer{}, false
	}
	return cloneDrawer(d), true
}

func (v transactionView) FindCompartment(id string) (domain.Compartment, bool) {
	c, ok := v.state.compartments[id]
	if !ok {
		return domain.Compartment{}, false
	}
	return cloneCompartment(c), true
}

func (v transactionView) FindPart(id string) (domain.Part, bool) {
	p, ok := v.state.parts[id]
	if !ok {
		return domain.Part{}, false
	}
	return clonePart(p), true
}

func (v transactionView) FindInventory(id string) (domain.Inventory, bool) {
	row, ok := v.state.inventory[id]
	return row, ok
}

func (v transactionView) FindRevision(id string) (domain.BlueprintRevision, bool) {
	r, ok := v.state.revisions[id]
	if !ok {
		return domain.BlueprintRevision{}, false
	}
	return cloneRevision(r), true
}

func (v transactionView) ListBlueprints(orgID string) []domain.Blueprint {
	out := make([]domain.Blueprint, 0)
	for _, b := range v.state.blueprints {
		if b.OrgID == orgID {
			out = append(out, cloneBlueprint(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) DrawersByBlueprint(blueprintID string) []domain.Drawer {
	out := make([]domain.Drawer, 0)
	for _, d := range v.state.drawers {
		if d.BlueprintID == blueprintID {
			out = append(out, cloneDrawer(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return layoutLess(out[i].ZIndex, out[j].ZIndex, out[i].Base, out[j].Base)
	})
	return out
}

func (v transactionView) CompartmentsByDrawer(drawerID string) []domain.Compartment {
	out := make([]domain.Compartment, 0)
	for _, c := range v.state.compartments {
		if c.DrawerID == drawerID {
			out = append(out, cloneCompartment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return layoutLess(out[i].ZIndex, out[j].ZIndex, out[i].Base, out[j].Base)
	})
	return out
}

func layoutLess(zi, zj int, bi, bj domain.Base) bool {
	if zi != zj {
		return zi < zj
	}
	if !bi.CreatedAt.Equal(bj.CreatedAt) {
		return bi.CreatedAt.Before(bj.CreatedAt)
	}
	return bi.ID < bj.ID
}

func (v transactionView) InventoryByCompartment(compartmentID string) []domain.Inventory {
	out := make([]domain.Inventory, 0)
	for _, row := range v.state.inventory {
		if row.CompartmentID == compartmentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	return out
}

func (v transactionView) InventoryByPart(partID string) []domain.Inventory {
	out := make([]domain.Inventory, 0)
	for _, row := range v.state.inventory {
		if row.PartID == partID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompartmentID < out[j].CompartmentID })
	return out
}

func (v transactionView) InventoryFor(partID, compartmentID string) (domain.Inventory, bool) {
	for _, row := range v.state.inventory {
		if row.PartID == partID && row.CompartmentID == compartmentID {
			return row, true
		}
	}
	return domain.Inventory{}, false
}

func (v transactionView) RevisionsByBlueprint(blueprintID string) []domain.BlueprintRevision {
	out := make([]domain.BlueprintRevision, 0)
	for _, r := range v.state.revisions {
		if r.BlueprintID == blueprintID {
			out = append(out, cloneRevision(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func (v transactionView) PartBySKU(orgID, sku string) (domain.Part, bool) {
	for _, p := range v.state.parts {
		if p.OrgID == orgID && p.SKU == sku {
			return clonePart(p), true
		}
	}
	return domain.Part{}, false
}

func (v transactionView) ListParts(orgID string) []domain.Part {
	out := make([]domain.Part, 0)
	for _, p := range v.state.parts {
		if p.OrgID == orgID {
			out = append(out, clonePart(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

func (v transactionView) TransactionsByOrg(orgID string) []domain.InventoryTransaction {
	out := make([]domain.InventoryTransaction, 0)
	for _, t := range v.state.transactions {
		if t.OrgID == orgID {
			out = append(out, cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AllBlueprints lists every blueprint across organizations, ordered by id.
func (v transactionView) AllBlueprints() []domain.Blueprint {
	out := make([]domain.Blueprint, 0, len(v.state.blueprints))
	for _, b := range v.state.blueprints {
		out = append(out, cloneBlueprint(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllDrawers lists every drawer, ordered by id.
func (v transactionView) AllDrawers() []domain.Drawer {
	out := make([]domain.Drawer, 0, len(v.state.drawers))
	for _, d := range v.state.drawers {
		out = append(out, cloneDrawer(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllCompartments lists every compartment, ordered by id.
func (v transactionView) AllCompartments() []domain.Compartment {
	out := make([]domain.Compartment, 0, len(v.state.compartments))
	for _, c := range v.state.compartments {
		out = append(out, cloneCompartment(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllInventory lists every inventory row, ordered by id.
func (v transactionView) AllInventory() []domain.Inventory {
	out := make([]domain.Inventory, 0, len(v.state.inventory))
	for _, row := range v.state.inventory {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
