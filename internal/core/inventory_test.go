package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/core"
	"binmap/pkg/domain"
)

func TestInventoryLedger(t *testing.T) {
	f := newFixture(t)
	bp := f.lockedBlueprint(t)
	_, comps := f.gridDrawer(t, bp.ID, 400, 300, 1, 2)
	p := f.part(t, "RES-10K")
	a, b := comps[0].ID, comps[1].ID

	in, err := f.svc.CheckIn(f.ctx, f.member, core.StockChange{PartID: p.ID, CompartmentID: a, Quantity: 10, Notes: ptr("delivery")})
	require.NoError(t, err)
	assert.Equal(t, 10, in.Inventory[0].Quantity)
	assert.Equal(t, domain.TransactionAdd, in.Transaction.ActionType)
	assert.Equal(t, "mel", in.Transaction.UserID)
	assert.Equal(t, epoch, in.Transaction.Timestamp)

	_, err = f.svc.CheckOut(f.ctx, f.member, core.StockChange{PartID: p.ID, CompartmentID: a, Quantity: 15})
	requireCode(t, err, domain.CodeValidation)

	out, err := f.svc.CheckOut(f.ctx, f.member, core.StockChange{PartID: p.ID, CompartmentID: a, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, out.Inventory[0].Quantity)
	assert.Equal(t, -4, out.Transaction.QuantityDelta)

	_, err = f.svc.Move(f.ctx, f.member, core.StockMove{PartID: p.ID, SourceCompartment: a, DestCompartment: a, Quantity: 1})
	requireCode(t, err, domain.CodeValidation)

	moved, err := f.svc.Move(f.ctx, f.member, core.StockMove{PartID: p.ID, SourceCompartment: a, DestCompartment: b, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, moved.Inventory, 2)
	assert.Equal(t, 3, moved.Inventory[0].Quantity)
	assert.Equal(t, 3, moved.Inventory[1].Quantity)
	assert.Equal(t, a, *moved.Transaction.SourceCompartmentID)
	assert.Equal(t, b, *moved.Transaction.DestCompartmentID)

	_, err = f.svc.Adjust(f.ctx, f.member, core.StockAdjustment{PartID: p.ID, CompartmentID: b, NewQuantity: 1})
	requireCode(t, err, domain.CodeForbidden)
	adj, err := f.svc.Adjust(f.ctx, f.alice, core.StockAdjustment{PartID: p.ID, CompartmentID: b, NewQuantity: 1})
	require.NoError(t, err)
	assert.Equal(t, -2, adj.Transaction.QuantityDelta)
	assert.Equal(t, b, *adj.Transaction.SourceCompartmentID)
	assert.Nil(t, adj.Transaction.DestCompartmentID)

	txs, err := f.svc.ListTransactions(f.ctx, f.member, p.ID)
	require.NoError(t, err)
	var kinds []domain.TransactionAction
	for _, tx := range txs {
		kinds = append(kinds, tx.ActionType)
	}
	assert.ElementsMatch(t, []domain.TransactionAction{
		domain.TransactionAdd, domain.TransactionRemove, domain.TransactionMove, domain.TransactionAdjust,
	}, kinds)

	rows, err := f.svc.InventoryForPart(f.ctx, f.member, p.ID)
	require.NoError(t, err)
	total := 0
	for _, r := range rows {
		total += r.Quantity
	}
	assert.Equal(t, 4, total)
}

func TestInventoryValidation(t *testing.T) {
	f := newFixture(t)
	bp := f.lockedBlueprint(t)
	_, comps := f.gridDrawer(t, bp.ID, 100, 100, 1, 1)
	p := f.part(t, "CAP-1U")

	_, err := f.svc.CreatePart(f.ctx, f.alice, core.PartInput{SKU: "CAP-1U", Name: "dup"})
	requireCode(t, err, domain.CodeValidation)
	_, err = f.svc.CreatePart(f.ctx, f.alice, core.PartInput{SKU: " ", Name: "blank"})
	requireCode(t, err, domain.CodeValidation)

	_, err = f.svc.CheckIn(f.ctx, f.alice, core.StockChange{PartID: p.ID, CompartmentID: comps[0].ID, Quantity: 0})
	requireCode(t, err, domain.CodeValidation)
	_, err = f.svc.Adjust(f.ctx, f.alice, core.StockAdjustment{PartID: p.ID, CompartmentID: comps[0].ID, NewQuantity: -1})
	requireCode(t, err, domain.CodeValidation)
	_, err = f.svc.CheckIn(f.ctx, f.alice, core.StockChange{PartID: "missing", CompartmentID: comps[0].ID, Quantity: 1})
	requireCode(t, err, domain.CodeNotFound)
	_, err = f.svc.CheckIn(f.ctx, f.other, core.StockChange{PartID: p.ID, CompartmentID: comps[0].ID, Quantity: 1})
	requireCode(t, err, domain.CodeNotFound)

	parts, err := f.svc.ListParts(f.ctx, f.member)
	require.NoError(t, err)
	assert.Len(t, parts, 1)
	foreign, err := f.svc.ListParts(f.ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestInventoryIsNotLockGated(t *testing.T) {
	f := newFixture(t)
	bp := f.lockedBlueprint(t)
	_, comps := f.gridDrawer(t, bp.ID, 100, 100, 1, 1)
	p := f.part(t, "LED")

	_, err := f.svc.CheckIn(f.ctx, f.bob, core.StockChange{PartID: p.ID, CompartmentID: comps[0].ID, Quantity: 2})
	require.NoError(t, err)
	rows, err := f.svc.InventoryForCompartment(f.ctx, f.bob, comps[0].ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Quantity)
}

func TestUpdateAndDeletePart(t *testing.T) {
	f := newFixture(t)
	bp := f.lockedBlueprint(t)
	_, comps := f.gridDrawer(t, bp.ID, 100, 100, 1, 1)
	p := f.part(t, "WASHER")
	f.part(t, "SHIM")

	updated, err := f.svc.UpdatePart(f.ctx, f.alice, p.ID, core.PartPatch{SKU: ptr(" WASHER-M4 "), Description: ptr("zinc")})
	require.NoError(t, err)
	assert.Equal(t, "WASHER-M4", updated.SKU)
	assert.Equal(t, p.Name, updated.Name)
	assert.Equal(t, "zinc", *updated.Description)

	_, err = f.svc.UpdatePart(f.ctx, f.alice, p.ID, core.PartPatch{SKU: ptr("SHIM")})
	requireCode(t, err, domain.CodeValidation)
	_, err = f.svc.UpdatePart(f.ctx, f.alice, p.ID, core.PartPatch{Name: ptr("  ")})
	requireCode(t, err, domain.CodeValidation)
	_, err = f.svc.UpdatePart(f.ctx, f.other, p.ID, core.PartPatch{Name: ptr("x")})
	requireCode(t, err, domain.CodeNotFound)

	f.stock(t, p.ID, comps[0].ID, 2)
	_, err = f.svc.DeletePart(f.ctx, f.alice, p.ID)
	requireCode(t, err, domain.CodeForbidden)
	_, err = f.svc.DeletePart(f.ctx, f.exec, p.ID)
	requireCode(t, err, domain.CodeInventoryConflict)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{comps[0].ID}, de.Blocking)

	_, err = f.svc.CheckOut(f.ctx, f.alice, core.StockChange{PartID: p.ID, CompartmentID: comps[0].ID, Quantity: 2})
	require.NoError(t, err)
	removed, err := f.svc.DeletePart(f.ctx, f.exec, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "the drained row goes with the part")

	parts, err := f.svc.ListParts(f.ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "SHIM", parts[0].SKU)
	rows, err := f.svc.InventoryForCompartment(f.ctx, f.alice, comps[0].ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	txs, err := f.svc.ListTransactions(f.ctx, f.alice, p.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "the audit trail outlives the part")
}
