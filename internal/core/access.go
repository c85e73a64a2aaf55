package core

import (
	"binmap/pkg/domain"
)

// Loaders resolve ids within the caller's organization. Anything missing or
// owned by another organization reads as NotFound.

func loadBlueprint(v domain.TransactionView, caller domain.CallerContext, id string) (domain.Blueprint, error) {
	bp, ok := v.FindBlueprint(id)
	if !ok || bp.OrgID != caller.OrgID {
		return domain.Blueprint{}, domain.NotFound(domain.EntityBlueprint, id)
	}
	return bp, nil
}

func loadDrawer(v domain.TransactionView, caller domain.CallerContext, id string) (domain.Drawer, domain.Blueprint, error) {
	d, ok := v.FindDrawer(id)
	if !ok {
		return domain.Drawer{}, domain.Blueprint{}, domain.NotFound(domain.EntityDrawer, id)
	}
	bp, ok := v.FindBlueprint(d.BlueprintID)
	if !ok || bp.OrgID != caller.OrgID {
		return domain.Drawer{}, domain.Blueprint{}, domain.NotFound(domain.EntityDrawer, id)
	}
	return d, bp, nil
}

func loadCompartment(v domain.TransactionView, caller domain.CallerContext, id string) (domain.Compartment, domain.Drawer, domain.Blueprint, error) {
	c, ok := v.FindCompartment(id)
	if !ok {
		return domain.Compartment{}, domain.Drawer{}, domain.Blueprint{}, domain.NotFound(domain.EntityCompartment, id)
	}
	d, bp, err := loadDrawer(v, caller, c.DrawerID)
	if err != nil {
		return domain.Compartment{}, domain.Drawer{}, domain.Blueprint{}, domain.NotFound(domain.EntityCompartment, id)
	}
	return c, d, bp, nil
}

func loadRevision(v domain.TransactionView, caller domain.CallerContext, id string) (domain.BlueprintRevision, error) {
	rev, ok := v.FindRevision(id)
	if !ok || rev.OrgID != caller.OrgID {
		return domain.BlueprintRevision{}, domain.NotFound(domain.EntityRevision, id)
	}
	if _, ok := v.FindBlueprint(rev.BlueprintID); !ok {
		return domain.BlueprintRevision{}, domain.NotFound(domain.EntityBlueprint, rev.BlueprintID)
	}
	return rev, nil
}

func loadPart(v domain.TransactionView, caller domain.CallerContext, id string) (domain.Part, error) {
	p, ok := v.FindPart(id)
	if !ok || p.OrgID != caller.OrgID {
		return domain.Part{}, domain.NotFound(domain.EntityPart, id)
	}
	return p, nil
}

// holdsInventory reports whether any row for the compartment has quantity > 0.
// Depleted rows do not count.
func holdsInventory(v domain.TransactionView, compartmentID string) bool {
	for _, inv := range v.InventoryByCompartment(compartmentID) {
		if inv.Quantity > 0 {
			return true
		}
	}
	return false
}
