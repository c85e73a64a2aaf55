package core

import (
	"context"
	"fmt"

	"binmap/pkg/domain"
)

// NewInventoryNonNegativeRule blocks commits that leave any inventory row
// below zero.
func NewInventoryNonNegativeRule() domain.Rule {
	return inventoryNonNegativeRule{}
}

type inventoryNonNegativeRule struct{}

func (inventoryNonNegativeRule) Name() string { return "inventory_non_negative" }

func (inventoryNonNegativeRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, inv := range view.AllInventory() {
		if inv.Quantity >= 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "inventory_non_negative",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("inventory %s for part %s in compartment %s is negative: %d", inv.ID, inv.PartID, inv.CompartmentID, inv.Quantity),
			Entity:   domain.EntityInventory,
			EntityID: inv.ID,
		})
	}
	return res, nil
}
