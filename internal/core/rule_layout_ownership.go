package core

import (
	"context"
	"fmt"

	"binmap/pkg/domain"
)

// NewLayoutOwnershipRule blocks dangling references between blueprints,
// drawers, compartments and inventory.
func NewLayoutOwnershipRule() domain.Rule {
	return layoutOwnershipRule{}
}

type layoutOwnershipRule struct{}

func (layoutOwnershipRule) Name() string { return "layout_ownership" }

func (layoutOwnershipRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, d := range view.AllDrawers() {
		if _, ok := view.FindBlueprint(d.BlueprintID); !ok {
			res.Violations = append(res.Violations, ownershipViolation(domain.EntityDrawer, d.ID,
				fmt.Sprintf("drawer %s references missing blueprint %s", d.ID, d.BlueprintID)))
		}
	}
	for _, c := range view.AllCompartments() {
		if _, ok := view.FindDrawer(c.DrawerID); !ok {
			res.Violations = append(res.Violations, ownershipViolation(domain.EntityCompartment, c.ID,
				fmt.Sprintf("compartment %s references missing drawer %s", c.ID, c.DrawerID)))
		}
	}
	for _, inv := range view.AllInventory() {
		if _, ok := view.FindCompartment(inv.CompartmentID); !ok {
			res.Violations = append(res.Violations, ownershipViolation(domain.EntityInventory, inv.ID,
				fmt.Sprintf("inventory %s references missing compartment %s", inv.ID, inv.CompartmentID)))
		}
	}
	return res, nil
}

func ownershipViolation(entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "layout_ownership",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
