package core

import (
	"context"
	"fmt"
	"math"

	"binmap/internal/reflow"
	"binmap/pkg/domain"
)

const cascadeNote = "cascade delete"

// removeCompartment deletes a compartment together with its inventory rows.
// Rows with quantity > 0 block the delete unless force is set, in which case
// each is written off with a Remove transaction. It returns the number of
// rows with stock that were written off.
func (s *Service) removeCompartment(tx domain.Transaction, caller domain.CallerContext, c domain.Compartment, force bool) (int, error) {
	rows := tx.InventoryByCompartment(c.ID)
	var blocking []string
	for _, row := range rows {
		if row.Quantity > 0 {
			blocking = append(blocking, row.PartID)
		}
	}
	if len(blocking) > 0 && !force {
		return 0, &domain.Error{
			Code:     domain.CodeInventoryConflict,
			Entity:   domain.EntityCompartment,
			ID:       c.ID,
			Blocking: []string{c.ID},
			Message:  fmt.Sprintf("compartment %s holds inventory; move it first or delete with force", c.ID),
		}
	}
	written := 0
	for _, row := range rows {
		if row.Quantity > 0 {
			src := c.ID
			note := cascadeNote
			if _, err := tx.AppendTransaction(domain.InventoryTransaction{
				ActionType:          domain.TransactionRemove,
				QuantityDelta:       -row.Quantity,
				SourceCompartmentID: &src,
				PartID:              row.PartID,
				UserID:              caller.UserID,
				Timestamp:           s.now(),
				Notes:               &note,
				OrgID:               row.OrgID,
			}); err != nil {
				return 0, err
			}
			written++
		}
		if err := tx.DeleteInventory(row.ID); err != nil {
			return 0, err
		}
	}
	return written, tx.DeleteCompartment(c.ID)
}

func nextZIndex(zs []int) int {
	next := 0
	for _, z := range zs {
		if z+1 > next {
			next = z + 1
		}
	}
	return next
}

func validSize(width, height float64) error {
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return domain.Validation("width and height must be positive, got %gx%g", width, height)
	}
	return nil
}

func finite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Validation("coordinates must be finite")
		}
	}
	return nil
}

// GetLayout returns a blueprint with its drawers, compartments and lock state.
func (s *Service) GetLayout(ctx context.Context, caller domain.CallerContext, blueprintID string) (Layout, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return Layout{}, err
	}
	var out Layout
	err := s.view(ctx, "get_layout", caller, func(v domain.TransactionView) error {
		bp, err := loadBlueprint(v, caller, blueprintID)
		if err != nil {
			return err
		}
		out = Layout{
			Blueprint:    bp,
			Lock:         domain.LockStateOf(bp, s.now(), s.lockTTL),
			Drawers:      v.DrawersByBlueprint(bp.ID),
			Compartments: []domain.Compartment{},
		}
		for _, d := range out.Drawers {
			out.Compartments = append(out.Compartments, v.CompartmentsByDrawer(d.ID)...)
		}
		return nil
	})
	return out, err
}

// CreateDrawer places a drawer on a locked blueprint.
func (s *Service) CreateDrawer(ctx context.Context, caller domain.CallerContext, blueprintID string, in DrawerInput) (domain.Drawer, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Drawer{}, err
	}
	if err := validSize(in.Width, in.Height); err != nil {
		return domain.Drawer{}, err
	}
	if err := finite(in.X, in.Y, in.Rotation); err != nil {
		return domain.Drawer{}, err
	}
	if in.GridRows < 0 || in.GridCols < 0 || (in.GridRows > 0) != (in.GridCols > 0) {
		return domain.Drawer{}, domain.Validation("grid rows and cols must both be positive or both omitted")
	}
	if in.GridRows > 0 {
		if err := validGrid(in.GridRows, in.GridCols); err != nil {
			return domain.Drawer{}, err
		}
	}
	if in.GridRows > 0 && in.Rotation != 0 {
		return domain.Drawer{}, domain.Errorf(domain.CodeUnsupportedRotation, "grid drawers must not be rotated")
	}
	var created domain.Drawer
	err := s.run(ctx, "create_drawer", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		bp, err := s.verifyLock(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		z := 0
		if in.ZIndex != nil {
			z = *in.ZIndex
		} else {
			var zs []int
			for _, d := range tx.DrawersByBlueprint(bp.ID) {
				zs = append(zs, d.ZIndex)
			}
			z = nextZIndex(zs)
		}
		d := domain.Drawer{
			BlueprintID: bp.ID,
			X:           in.X, Y: in.Y, Width: in.Width, Height: in.Height,
			Rotation: in.Rotation, ZIndex: z, Label: in.Label,
		}
		if in.GridRows > 0 {
			rows, cols := in.GridRows, in.GridCols
			d.GridRows, d.GridCols = &rows, &cols
		}
		created, err = tx.CreateDrawer(d)
		if err != nil {
			return err
		}
		for _, cell := range reflow.GridCells(created.Width, created.Height, in.GridRows, in.GridCols) {
			if _, err := tx.CreateCompartment(cellCompartment(created.ID, cell, in.GridCols)); err != nil {
				return err
			}
		}
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	return created, err
}

// UpdateDrawer moves, resizes, rotates or relabels a drawer. A resize
// reflows its compartments: grid drawers are re-laid on their grid and
// freehand drawers scale their compartments proportionally.
func (s *Service) UpdateDrawer(ctx context.Context, caller domain.CallerContext, drawerID string, patch DrawerPatch) (domain.Drawer, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Drawer{}, err
	}
	var updated domain.Drawer
	err := s.run(ctx, "update_drawer", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		current, bp, err := loadDrawer(tx, caller, drawerID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		next := current
		applyDrawerPatch(&next, patch)
		if err := validSize(next.Width, next.Height); err != nil {
			return err
		}
		if err := finite(next.X, next.Y, next.Rotation); err != nil {
			return err
		}
		if next.HasGrid() && next.Rotation != 0 {
			return domain.Errorf(domain.CodeUnsupportedRotation, "drawer %s is grid managed and cannot be rotated", current.ID)
		}
		updated, err = tx.UpdateDrawer(current.ID, func(d *domain.Drawer) error {
			applyDrawerPatch(d, patch)
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Width != current.Width || updated.Height != current.Height {
			if err := reflowResize(tx, current, updated); err != nil {
				return err
			}
		}
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	return updated, err
}

func applyDrawerPatch(d *domain.Drawer, p DrawerPatch) {
	if p.X != nil {
		d.X = *p.X
	}
	if p.Y != nil {
		d.Y = *p.Y
	}
	if p.Width != nil {
		d.Width = *p.Width
	}
	if p.Height != nil {
		d.Height = *p.Height
	}
	if p.Rotation != nil {
		d.Rotation = *p.Rotation
	}
	if p.ZIndex != nil {
		d.ZIndex = *p.ZIndex
	}
	if p.Label != nil {
		label := *p.Label
		d.Label = &label
	}
}

// reflowResize keeps compartments inside a drawer whose footprint changed.
func reflowResize(tx domain.Transaction, before, after domain.Drawer) error {
	comps := tx.CompartmentsByDrawer(before.ID)
	if before.HasGrid() && len(comps) == *before.GridRows**before.GridCols {
		rows, cols := *before.GridRows, *before.GridCols
		cands := make([]reflow.Candidate, 0, len(comps))
		for _, c := range comps {
			cands = append(cands, reflow.Candidate{ID: c.ID, X: c.X, Y: c.Y, ZIndex: c.ZIndex})
		}
		plan := reflow.AssignToGrid(cands, before.Width, before.Height, rows, cols)
		resized := reflow.GridCells(after.Width, after.Height, rows, cols)
		for _, a := range plan.Assignments {
			cell := resized[a.Cell.ZIndex(cols)]
			if _, err := tx.UpdateCompartment(a.ID, func(c *domain.Compartment) error {
				placeInCell(c, cell, cols)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range comps {
		r := reflow.ScaleRect(reflow.Rect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height},
			before.Width, before.Height, after.Width, after.Height)
		if _, err := tx.UpdateCompartment(c.ID, func(c *domain.Compartment) error {
			c.X, c.Y, c.Width, c.Height = r.X, r.Y, r.Width, r.Height
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDrawer removes a drawer and its compartments. Stocked compartments
// block the delete unless force is set.
func (s *Service) DeleteDrawer(ctx context.Context, caller domain.CallerContext, drawerID string, force bool) (DeleteResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return DeleteResult{}, err
	}
	var out DeleteResult
	err := s.run(ctx, "delete_drawer", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out = DeleteResult{}
		d, bp, err := loadDrawer(tx, caller, drawerID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		if err := s.guardCompartments(tx, tx.CompartmentsByDrawer(d.ID), force); err != nil {
			return err
		}
		for _, c := range tx.CompartmentsByDrawer(d.ID) {
			written, err := s.removeCompartment(tx, caller, c, force)
			if err != nil {
				return err
			}
			out.Compartments++
			out.InventoryRemoved += written
		}
		if err := tx.DeleteDrawer(d.ID); err != nil {
			return err
		}
		out.Drawers = 1
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	return out, err
}

// guardCompartments checks every compartment before any write so a
// non-forced cascade reports all stocked compartments at once.
func (s *Service) guardCompartments(v domain.TransactionView, comps []domain.Compartment, force bool) error {
	if force {
		return nil
	}
	var blocking []string
	for _, c := range comps {
		if holdsInventory(v, c.ID) {
			blocking = append(blocking, c.ID)
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	return &domain.Error{
		Code:     domain.CodeInventoryConflict,
		Blocking: blocking,
		Message:  fmt.Sprintf("%d compartment(s) hold inventory; move it first or delete with force", len(blocking)),
	}
}

// CreateCompartment adds a freehand compartment to a drawer.
func (s *Service) CreateCompartment(ctx context.Context, caller domain.CallerContext, drawerID string, in CompartmentInput) (domain.Compartment, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Compartment{}, err
	}
	if err := validSize(in.Width, in.Height); err != nil {
		return domain.Compartment{}, err
	}
	if err := finite(in.X, in.Y, in.Rotation); err != nil {
		return domain.Compartment{}, err
	}
	var created domain.Compartment
	err := s.run(ctx, "create_compartment", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		d, bp, err := loadDrawer(tx, caller, drawerID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		z := 0
		if in.ZIndex != nil {
			z = *in.ZIndex
		} else {
			var zs []int
			for _, c := range tx.CompartmentsByDrawer(d.ID) {
				zs = append(zs, c.ZIndex)
			}
			z = nextZIndex(zs)
		}
		created, err = tx.CreateCompartment(domain.Compartment{
			DrawerID: d.ID,
			X:        in.X, Y: in.Y, Width: in.Width, Height: in.Height,
			Rotation: in.Rotation, ZIndex: z, Label: in.Label,
		})
		if err != nil {
			return err
		}
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	return created, err
}

// UpdateCompartment edits a compartment's geometry or label, or moves it to
// another drawer of the same blueprint. Inventory stays with the
// compartment.
func (s *Service) UpdateCompartment(ctx context.Context, caller domain.CallerContext, compartmentID string, patch CompartmentPatch) (domain.Compartment, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Compartment{}, err
	}
	var updated domain.Compartment
	err := s.run(ctx, "update_compartment", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		current, _, bp, err := loadCompartment(tx, caller, compartmentID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		if patch.DrawerID != nil && *patch.DrawerID != current.DrawerID {
			_, destBP, err := loadDrawer(tx, caller, *patch.DrawerID)
			if err != nil {
				return err
			}
			if destBP.ID != bp.ID {
				return &domain.Error{
					Code: domain.CodeCrossBlueprintNotAllowed, Entity: domain.EntityCompartment, ID: current.ID,
					Message: "compartments can only move between drawers of the same blueprint",
				}
			}
		}
		next := current
		applyCompartmentPatch(&next, patch)
		if err := validSize(next.Width, next.Height); err != nil {
			return err
		}
		if err := finite(next.X, next.Y, next.Rotation); err != nil {
			return err
		}
		updated, err = tx.UpdateCompartment(current.ID, func(c *domain.Compartment) error {
			applyCompartmentPatch(c, patch)
			return nil
		})
		if err != nil {
			return err
		}
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	return updated, err
}

func applyCompartmentPatch(c *domain.Compartment, p CompartmentPatch) {
	if p.DrawerID != nil {
		c.DrawerID = *p.DrawerID
	}
	if p.X != nil {
		c.X = *p.X
	}
	if p.Y != nil {
		c.Y = *p.Y
	}
	if p.Width != nil {
		c.Width = *p.Width
	}
	if p.Height != nil {
		c.Height = *p.Height
	}
	if p.Rotation != nil {
		c.Rotation = *p.Rotation
	}
	if p.ZIndex != nil {
		c.ZIndex = *p.ZIndex
	}
	if p.Label != nil {
		label := *p.Label
		c.Label = &label
	}
}

// DeleteCompartment removes one compartment and, for grid drawers,
// re-grids the remaining compartments.
func (s *Service) DeleteCompartment(ctx context.Context, caller domain.CallerContext, compartmentID string, force bool) (DeleteResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return DeleteResult{}, err
	}
	var out DeleteResult
	err := s.run(ctx, "delete_compartment", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out = DeleteResult{}
		c, d, bp, err := loadCompartment(tx, caller, compartmentID)
		if err != nil {
			return err
		}
		if _, err := s.verifyLock(tx, caller, bp.ID); err != nil {
			return err
		}
		written, err := s.removeCompartment(tx, caller, c, force)
		if err != nil {
			return err
		}
		out.Compartments, out.InventoryRemoved = 1, written
		if d.HasGrid() {
			if err := autoRegrid(tx, d.ID); err != nil {
				return err
			}
		}
		if err := touchLayout(tx, bp.ID); err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	return out, err
}
