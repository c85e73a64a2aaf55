package core

import (
	"context"
	"fmt"

	"binmap/pkg/domain"
)

// NewGridConsistencyRule warns when a grid-managed drawer does not hold
// exactly rows x cols compartments. Emptied drawers are not reported.
func NewGridConsistencyRule() domain.Rule {
	return gridConsistencyRule{}
}

type gridConsistencyRule struct{}

func (gridConsistencyRule) Name() string { return "grid_consistency" }

func (gridConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, d := range view.AllDrawers() {
		if !d.HasGrid() {
			continue
		}
		n := len(view.CompartmentsByDrawer(d.ID))
		want := *d.GridRows * *d.GridCols
		if n == 0 || n == want {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "grid_consistency",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("drawer %s has a %dx%d grid but %d compartments", d.ID, *d.GridRows, *d.GridCols, n),
			Entity:   domain.EntityDrawer,
			EntityID: d.ID,
		})
	}
	return res, nil
}
