package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"binmap/internal/reflow"
	"binmap/pkg/domain"
)

func cellCompartment(drawerID string, cell reflow.Cell, cols int) domain.Compartment {
	c := domain.Compartment{DrawerID: drawerID}
	placeInCell(&c, cell, cols)
	return c
}

func placeInCell(c *domain.Compartment, cell reflow.Cell, cols int) {
	c.X, c.Y = cell.X, cell.Y
	c.Width, c.Height = cell.Width, cell.Height
	c.Rotation = 0
	c.ZIndex = cell.ZIndex(cols)
}

// SetGrid re-partitions a drawer into rows x cols equal cells without
// changing its footprint. Existing compartments keep their ids, labels and
// inventory and move to the nearest free cell; compartments left over are
// deleted. If any of those holds inventory nothing is written.
func (s *Service) SetGrid(ctx context.Context, caller domain.CallerContext, drawerID string, rows, cols int) (GridResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return GridResult{}, err
	}
	if err := validGrid(rows, cols); err != nil {
		return GridResult{}, err
	}
	var out GridResult
	err := s.run(ctx, "set_grid", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out = GridResult{Created: []string{}, Deleted: []string{}}
		d, bp, err := loadDrawer(tx, caller, drawerID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		if d.Rotation != 0 {
			return &domain.Error{
				Code: domain.CodeUnsupportedRotation, Entity: domain.EntityDrawer, ID: d.ID,
				Message: fmt.Sprintf("drawer %s is rotated %g degrees; grids require rotation 0", d.ID, d.Rotation),
			}
		}

		comps := tx.CompartmentsByDrawer(d.ID)
		byID := make(map[string]domain.Compartment, len(comps))
		cands := make([]reflow.Candidate, 0, len(comps))
		for _, c := range comps {
			byID[c.ID] = c
			cands = append(cands, reflow.Candidate{
				ID: c.ID, X: c.X, Y: c.Y, ZIndex: c.ZIndex,
				HasInventory: holdsInventory(tx, c.ID),
			})
		}
		plan := reflow.AssignToGrid(cands, d.Width, d.Height, rows, cols)
		if len(plan.Blocked) > 0 {
			return &domain.Error{
				Code:     domain.CodeGridShrinkBlocked,
				Entity:   domain.EntityDrawer,
				ID:       d.ID,
				Blocking: plan.Blocked,
				Message: fmt.Sprintf("a %dx%d grid has no room for %d compartment(s) holding inventory",
					rows, cols, len(plan.Blocked)),
			}
		}

		for _, id := range plan.ToDelete {
			if _, err := s.removeCompartment(tx, caller, byID[id], false); err != nil {
				return err
			}
			out.Deleted = append(out.Deleted, id)
		}
		for _, a := range plan.Assignments {
			if _, err := tx.UpdateCompartment(a.ID, func(c *domain.Compartment) error {
				placeInCell(c, a.Cell, cols)
				return nil
			}); err != nil {
				return err
			}
		}
		for _, cell := range plan.Empty {
			created, err := tx.CreateCompartment(cellCompartment(d.ID, cell, cols))
			if err != nil {
				return err
			}
			out.Created = append(out.Created, created.ID)
		}
		out.Drawer, err = tx.UpdateDrawer(d.ID, func(d *domain.Drawer) error {
			r, c := rows, cols
			d.GridRows, d.GridCols = &r, &c
			return nil
		})
		if err != nil {
			return err
		}
		out.Compartments = tx.CompartmentsByDrawer(d.ID)
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		return GridResult{}, err
	}
	return out, nil
}

func validGrid(rows, cols int) error {
	if rows < 1 || cols < 1 {
		return domain.Validation("rows and cols must be at least 1, got %dx%d", rows, cols)
	}
	if !reflow.GridFits(rows, cols) {
		return domain.Validation("grid %dx%d exceeds %d cells", rows, cols, reflow.MaxGridCells)
	}
	return nil
}

// autoRegrid lays the remaining compartments of a grid drawer out on the
// factorization of their count closest to the drawer's aspect ratio.
// Compartments keep their stacking order, row-major.
func autoRegrid(tx domain.Transaction, drawerID string) error {
	d, ok := tx.FindDrawer(drawerID)
	if !ok {
		return domain.NotFound(domain.EntityDrawer, drawerID)
	}
	comps := tx.CompartmentsByDrawer(drawerID)
	if len(comps) == 0 {
		return nil
	}
	rows, cols := reflow.ChooseGridDimensions(len(comps), d.Width/d.Height)
	cells := reflow.GridCells(d.Width, d.Height, rows, cols)
	for i, c := range comps {
		cell := cells[i]
		if _, err := tx.UpdateCompartment(c.ID, func(c *domain.Compartment) error {
			placeInCell(c, cell, cols)
			return nil
		}); err != nil {
			return err
		}
	}
	_, err := tx.UpdateDrawer(drawerID, func(d *domain.Drawer) error {
		d.GridRows, d.GridCols = &rows, &cols
		return nil
	})
	return err
}

// SplitDrawer cuts one compartment, or the whole drawer when it is empty,
// into two along a line at the absolute blueprint coordinate position. Both
// halves are created and the original removed in one transaction; the
// drawer stops being grid managed.
func (s *Service) SplitDrawer(ctx context.Context, caller domain.CallerContext, drawerID string, orientation Orientation, position float64, targetID *string) (SplitResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return SplitResult{}, err
	}
	if !orientation.Valid() {
		return SplitResult{}, domain.Validation("orientation must be %q or %q, got %q", Vertical, Horizontal, orientation)
	}
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return SplitResult{}, domain.Validation("split position must be finite")
	}
	var out SplitResult
	err := s.run(ctx, "split_drawer", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out = SplitResult{}
		d, bp, err := loadDrawer(tx, caller, drawerID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		if d.Rotation != 0 {
			return &domain.Error{
				Code: domain.CodeUnsupportedRotation, Entity: domain.EntityDrawer, ID: d.ID,
				Message: fmt.Sprintf("drawer %s is rotated; splits require rotation 0", d.ID),
			}
		}

		target, found, err := resolveSplitTarget(tx, d, orientation, position, targetID)
		if err != nil {
			return err
		}
		source := reflow.Rect{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}
		var template domain.Compartment
		if found {
			if holdsInventory(tx, target.ID) {
				return &domain.Error{
					Code: domain.CodeSplitBlocked, Entity: domain.EntityCompartment, ID: target.ID,
					Blocking: []string{target.ID},
					Message:  fmt.Sprintf("compartment %s holds inventory and cannot be split", target.ID),
				}
			}
			template = target
			source = absoluteRect(d, target)
		}

		first, second, err := reflow.Split(source, orientation, position, domain.GridSize)
		if errors.Is(err, reflow.ErrTooNarrow) {
			return &domain.Error{
				Code: domain.CodeSplitTooNarrow, Entity: domain.EntityDrawer, ID: d.ID,
				Message: fmt.Sprintf("both halves must be at least %g units", domain.GridSize),
			}
		}
		if err != nil {
			return err
		}

		halves := make([]domain.Compartment, 0, 2)
		for _, abs := range []reflow.Rect{first, second} {
			rel := reflow.Translate(abs, -d.X, -d.Y)
			half, err := tx.CreateCompartment(domain.Compartment{
				DrawerID: d.ID,
				X:        rel.X, Y: rel.Y, Width: rel.Width, Height: rel.Height,
				Rotation: template.Rotation, ZIndex: template.ZIndex,
			})
			if err != nil {
				return err
			}
			halves = append(halves, half)
		}
		if found {
			if _, err := s.removeCompartment(tx, caller, target, false); err != nil {
				return err
			}
			out.Removed = target.ID
		}
		if _, err := tx.UpdateDrawer(d.ID, func(d *domain.Drawer) error {
			d.GridRows, d.GridCols = nil, nil
			return nil
		}); err != nil {
			return err
		}
		out.First, out.Second = halves[0], halves[1]
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		return SplitResult{}, err
	}
	return out, nil
}

func absoluteRect(d domain.Drawer, c domain.Compartment) reflow.Rect {
	return reflow.Translate(reflow.Rect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}, d.X, d.Y)
}

// resolveSplitTarget returns the compartment to split. found is false only
// for an empty drawer without an explicit target.
func resolveSplitTarget(v domain.TransactionView, d domain.Drawer, o Orientation, position float64, targetID *string) (domain.Compartment, bool, error) {
	if targetID != nil && *targetID != "" {
		c, ok := v.FindCompartment(*targetID)
		if !ok || c.DrawerID != d.ID {
			return domain.Compartment{}, false, domain.NotFound(domain.EntityCompartment, *targetID)
		}
		return c, true, nil
	}
	comps := v.CompartmentsByDrawer(d.ID)
	if len(comps) == 0 {
		return domain.Compartment{}, false, nil
	}
	byID := make(map[string]domain.Compartment, len(comps))
	cands := make([]reflow.SplitCandidate, 0, len(comps))
	for _, c := range comps {
		byID[c.ID] = c
		cands = append(cands, reflow.SplitCandidate{ID: c.ID, ZIndex: c.ZIndex, Rect: absoluteRect(d, c)})
	}
	best, ok := reflow.FindSplitTarget(cands, o, position, domain.GridSize)
	if !ok {
		return domain.Compartment{}, false, &domain.Error{
			Code: domain.CodeNoSplitTarget, Entity: domain.EntityDrawer, ID: d.ID,
			Message: fmt.Sprintf("no compartment in drawer %s spans %s line at %g with %g units to spare", d.ID, o, position, domain.GridSize),
		}
	}
	return byID[best.ID], true, nil
}

// SwapCompartments exchanges the placement of two compartments of the same
// blueprint, including which drawer they sit in.
func (s *Service) SwapCompartments(ctx context.Context, caller domain.CallerContext, aID, bID string) ([]domain.Compartment, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return nil, err
	}
	var out []domain.Compartment
	err := s.run(ctx, "swap_compartments", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		a, _, bpA, err := loadCompartment(tx, caller, aID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bpA.ID); err != nil {
			return err
		}
		if aID == bID {
			out = []domain.Compartment{a}
			return nil
		}
		b, _, bpB, err := loadCompartment(tx, caller, bID)
		if err != nil {
			return err
		}
		if bpA.ID != bpB.ID {
			return &domain.Error{
				Code: domain.CodeCrossBlueprintNotAllowed, Entity: domain.EntityCompartment, ID: bID,
				Message: "compartments belong to different blueprints",
			}
		}
		swap := func(into domain.Compartment) func(*domain.Compartment) error {
			return func(c *domain.Compartment) error {
				c.DrawerID = into.DrawerID
				c.X, c.Y = into.X, into.Y
				c.Width, c.Height = into.Width, into.Height
				c.Rotation = into.Rotation
				return nil
			}
		}
		newA, err := tx.UpdateCompartment(a.ID, swap(b))
		if err != nil {
			return err
		}
		newB, err := tx.UpdateCompartment(b.ID, swap(a))
		if err != nil {
			return err
		}
		out = []domain.Compartment{newA, newB}
		if err := touchLayout(tx, bpA.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bpA.ID, OrgID: bpA.OrgID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
