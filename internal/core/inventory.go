package core

import (
	"context"
	"fmt"
	"strings"

	"binmap/pkg/domain"
)

// CreatePart adds a catalogue entry. SKUs are unique within an
// organization.
func (s *Service) CreatePart(ctx context.Context, caller domain.CallerContext, in PartInput) (domain.Part, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Part{}, err
	}
	sku := strings.TrimSpace(in.SKU)
	name := strings.TrimSpace(in.Name)
	if sku == "" || name == "" {
		return domain.Part{}, domain.Validation("part sku and name are required")
	}
	var created domain.Part
	err := s.run(ctx, "create_part", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, exists := tx.PartBySKU(caller.OrgID, sku); exists {
			return domain.Validation("a part with SKU %q already exists", sku)
		}
		var err error
		created, err = tx.CreatePart(domain.Part{OrgID: caller.OrgID, SKU: sku, Name: name, Description: in.Description})
		return err
	})
	return created, err
}

// ListParts returns the organization's catalogue ordered by SKU.
func (s *Service) ListParts(ctx context.Context, caller domain.CallerContext) ([]domain.Part, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return nil, err
	}
	var out []domain.Part
	err := s.view(ctx, "list_parts", caller, func(v domain.TransactionView) error {
		out = v.ListParts(caller.OrgID)
		return nil
	})
	return out, err
}

// UpdatePart edits a catalogue entry. SKUs stay unique per organization.
func (s *Service) UpdatePart(ctx context.Context, caller domain.CallerContext, partID string, patch PartPatch) (domain.Part, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Part{}, err
	}
	var updated domain.Part
	err := s.run(ctx, "update_part", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, err := loadPart(tx, caller, partID); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdatePart(partID, func(p *domain.Part) error {
			if patch.SKU != nil {
				sku := strings.TrimSpace(*patch.SKU)
				if sku == "" {
					return domain.Validation("part sku is required")
				}
				if other, exists := tx.PartBySKU(p.OrgID, sku); exists && other.ID != p.ID {
					return domain.Validation("a part with SKU %q already exists", sku)
				}
				p.SKU = sku
			}
			if patch.Name != nil {
				name := strings.TrimSpace(*patch.Name)
				if name == "" {
					return domain.Validation("part name is required")
				}
				p.Name = name
			}
			if patch.Description != nil {
				desc := *patch.Description
				p.Description = &desc
			}
			return nil
		})
		return err
	})
	return updated, err
}

// DeletePart removes a part from the catalogue together with its drained
// inventory rows and returns how many rows went with it. A part still
// stocked anywhere is refused. The audit trail keeps its transactions.
func (s *Service) DeletePart(ctx context.Context, caller domain.CallerContext, partID string) (int, error) {
	if err := domain.RequireRole(caller, "", domain.MinElevatedRole); err != nil {
		return 0, err
	}
	var removed int
	err := s.run(ctx, "delete_part", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, err := loadPart(tx, caller, partID); err != nil {
			return err
		}
		rows := tx.InventoryByPart(partID)
		var stocked []string
		for _, row := range rows {
			if row.Quantity > 0 {
				stocked = append(stocked, row.CompartmentID)
			}
		}
		if len(stocked) > 0 {
			return &domain.Error{
				Code:     domain.CodeInventoryConflict,
				Entity:   domain.EntityPart,
				ID:       partID,
				Blocking: stocked,
				Message:  fmt.Sprintf("part %s is still stocked in %d compartment(s)", partID, len(stocked)),
			}
		}
		for _, row := range rows {
			if err := tx.DeleteInventory(row.ID); err != nil {
				return err
			}
		}
		removed = len(rows)
		return tx.DeletePart(partID)
	})
	return removed, err
}

func positive(qty int) error {
	if qty <= 0 {
		return domain.Validation("quantity must be positive, got %d", qty)
	}
	return nil
}

// setQuantity writes the row for (part, compartment), creating it when
// absent. Rows drained to zero are kept.
func setQuantity(tx domain.Transaction, orgID, partID, compartmentID string, qty int) (domain.Inventory, error) {
	row, ok := tx.InventoryFor(partID, compartmentID)
	if !ok {
		return tx.CreateInventory(domain.Inventory{PartID: partID, CompartmentID: compartmentID, Quantity: qty, OrgID: orgID})
	}
	return tx.UpdateInventory(row.ID, func(inv *domain.Inventory) error {
		inv.Quantity = qty
		return nil
	})
}

func quantityOf(v domain.TransactionView, partID, compartmentID string) int {
	if row, ok := v.InventoryFor(partID, compartmentID); ok {
		return row.Quantity
	}
	return 0
}

func (s *Service) record(tx domain.Transaction, caller domain.CallerContext, t domain.InventoryTransaction) (domain.InventoryTransaction, error) {
	t.UserID = caller.UserID
	t.OrgID = caller.OrgID
	t.Timestamp = s.now()
	return tx.AppendTransaction(t)
}

// CheckIn adds stock of a part to a compartment.
func (s *Service) CheckIn(ctx context.Context, caller domain.CallerContext, in StockChange) (StockResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinInventoryRole); err != nil {
		return StockResult{}, err
	}
	if err := positive(in.Quantity); err != nil {
		return StockResult{}, err
	}
	var out StockResult
	err := s.run(ctx, "check_in", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, err := loadPart(tx, caller, in.PartID); err != nil {
			return err
		}
		if _, _, _, err := loadCompartment(tx, caller, in.CompartmentID); err != nil {
			return err
		}
		row, err := setQuantity(tx, caller.OrgID, in.PartID, in.CompartmentID, quantityOf(tx, in.PartID, in.CompartmentID)+in.Quantity)
		if err != nil {
			return err
		}
		dest := in.CompartmentID
		t, err := s.record(tx, caller, domain.InventoryTransaction{
			ActionType: domain.TransactionAdd, QuantityDelta: in.Quantity,
			DestCompartmentID: &dest, PartID: in.PartID, Notes: in.Notes,
		})
		out = StockResult{Inventory: []domain.Inventory{row}, Transaction: t}
		return err
	})
	return out, err
}

// CheckOut removes stock of a part from a compartment.
func (s *Service) CheckOut(ctx context.Context, caller domain.CallerContext, in StockChange) (StockResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinInventoryRole); err != nil {
		return StockResult{}, err
	}
	if err := positive(in.Quantity); err != nil {
		return StockResult{}, err
	}
	var out StockResult
	err := s.run(ctx, "check_out", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, err := loadPart(tx, caller, in.PartID); err != nil {
			return err
		}
		if _, _, _, err := loadCompartment(tx, caller, in.CompartmentID); err != nil {
			return err
		}
		have := quantityOf(tx, in.PartID, in.CompartmentID)
		if have < in.Quantity {
			return domain.Validation("insufficient quantity: compartment %s holds %d, requested %d", in.CompartmentID, have, in.Quantity)
		}
		row, err := setQuantity(tx, caller.OrgID, in.PartID, in.CompartmentID, have-in.Quantity)
		if err != nil {
			return err
		}
		src := in.CompartmentID
		t, err := s.record(tx, caller, domain.InventoryTransaction{
			ActionType: domain.TransactionRemove, QuantityDelta: -in.Quantity,
			SourceCompartmentID: &src, PartID: in.PartID, Notes: in.Notes,
		})
		out = StockResult{Inventory: []domain.Inventory{row}, Transaction: t}
		return err
	})
	return out, err
}

// Move transfers stock between two compartments of the organization.
func (s *Service) Move(ctx context.Context, caller domain.CallerContext, in StockMove) (StockResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinInventoryRole); err != nil {
		return StockResult{}, err
	}
	if err := positive(in.Quantity); err != nil {
		return StockResult{}, err
	}
	if in.SourceCompartment == in.DestCompartment {
		return StockResult{}, domain.Validation("source and destination compartments must differ")
	}
	var out StockResult
	err := s.run(ctx, "move_stock", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, err := loadPart(tx, caller, in.PartID); err != nil {
			return err
		}
		for _, id := range []string{in.SourceCompartment, in.DestCompartment} {
			if _, _, _, err := loadCompartment(tx, caller, id); err != nil {
				return err
			}
		}
		have := quantityOf(tx, in.PartID, in.SourceCompartment)
		if have < in.Quantity {
			return domain.Validation("insufficient quantity: compartment %s holds %d, requested %d", in.SourceCompartment, have, in.Quantity)
		}
		srcRow, err := setQuantity(tx, caller.OrgID, in.PartID, in.SourceCompartment, have-in.Quantity)
		if err != nil {
			return err
		}
		dstRow, err := setQuantity(tx, caller.OrgID, in.PartID, in.DestCompartment, quantityOf(tx, in.PartID, in.DestCompartment)+in.Quantity)
		if err != nil {
			return err
		}
		src, dst := in.SourceCompartment, in.DestCompartment
		t, err := s.record(tx, caller, domain.InventoryTransaction{
			ActionType: domain.TransactionMove, QuantityDelta: in.Quantity,
			SourceCompartmentID: &src, DestCompartmentID: &dst, PartID: in.PartID, Notes: in.Notes,
		})
		out = StockResult{Inventory: []domain.Inventory{srcRow, dstRow}, Transaction: t}
		return err
	})
	return out, err
}

// Adjust sets an absolute quantity after a stock count. The audit record
// carries the signed difference; a decrease names the compartment as the
// source, an increase as the destination.
func (s *Service) Adjust(ctx context.Context, caller domain.CallerContext, in StockAdjustment) (StockResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinAdjustRole); err != nil {
		return StockResult{}, err
	}
	if in.NewQuantity < 0 {
		return StockResult{}, domain.Validation("quantity must not be negative, got %d", in.NewQuantity)
	}
	var out StockResult
	err := s.run(ctx, "adjust_stock", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		if _, err := loadPart(tx, caller, in.PartID); err != nil {
			return err
		}
		if _, _, _, err := loadCompartment(tx, caller, in.CompartmentID); err != nil {
			return err
		}
		delta := in.NewQuantity - quantityOf(tx, in.PartID, in.CompartmentID)
		row, err := setQuantity(tx, caller.OrgID, in.PartID, in.CompartmentID, in.NewQuantity)
		if err != nil {
			return err
		}
		comp := in.CompartmentID
		t := domain.InventoryTransaction{ActionType: domain.TransactionAdjust, QuantityDelta: delta, PartID: in.PartID, Notes: in.Notes}
		if delta < 0 {
			t.SourceCompartmentID = &comp
		} else {
			t.DestCompartmentID = &comp
		}
		t, err = s.record(tx, caller, t)
		out = StockResult{Inventory: []domain.Inventory{row}, Transaction: t}
		return err
	})
	return out, err
}

// InventoryForCompartment lists what a compartment holds, including
// depleted rows.
func (s *Service) InventoryForCompartment(ctx context.Context, caller domain.CallerContext, compartmentID string) ([]domain.Inventory, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return nil, err
	}
	var out []domain.Inventory
	err := s.view(ctx, "inventory_for_compartment", caller, func(v domain.TransactionView) error {
		if _, _, _, err := loadCompartment(v, caller, compartmentID); err != nil {
			return err
		}
		out = v.InventoryByCompartment(compartmentID)
		return nil
	})
	return out, err
}

// InventoryForPart lists where a part is stocked.
func (s *Service) InventoryForPart(ctx context.Context, caller domain.CallerContext, partID string) ([]domain.Inventory, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return nil, err
	}
	var out []domain.Inventory
	err := s.view(ctx, "inventory_for_part", caller, func(v domain.TransactionView) error {
		if _, err := loadPart(v, caller, partID); err != nil {
			return err
		}
		out = v.InventoryByPart(partID)
		return nil
	})
	return out, err
}

// ListTransactions returns the organization's audit trail, optionally
// narrowed to one part.
func (s *Service) ListTransactions(ctx context.Context, caller domain.CallerContext, partID string) ([]domain.InventoryTransaction, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return nil, err
	}
	var out []domain.InventoryTransaction
	err := s.view(ctx, "list_transactions", caller, func(v domain.TransactionView) error {
		all := v.TransactionsByOrg(caller.OrgID)
		if partID == "" {
			out = all
			return nil
		}
		out = out[:0]
		for _, t := range all {
			if t.PartID == partID {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}
