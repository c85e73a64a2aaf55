package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"binmap/internal/infra/persistence/memory"
	"binmap/pkg/domain"
)

func seedDrawer(t *testing.T, store *memory.Store, rows, cols, comps int) (string, string) {
	t.Helper()
	var drawerID, compID string
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		bp, err := tx.CreateBlueprint(domain.Blueprint{OrgID: "org-1", Name: "bench"})
		if err != nil {
			return err
		}
		d, err := tx.CreateDrawer(domain.Drawer{BlueprintID: bp.ID, Width: 200, Height: 100, GridRows: &rows, GridCols: &cols})
		if err != nil {
			return err
		}
		drawerID = d.ID
		for i := 0; i < comps; i++ {
			c, err := tx.CreateCompartment(domain.Compartment{DrawerID: d.ID, Width: 10, Height: 10, ZIndex: i})
			if err != nil {
				return err
			}
			compID = c.ID
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return drawerID, compID
}

func TestDefaultRulesEngineRegistration(t *testing.T) {
	got := NewDefaultRulesEngine(0).Rules()
	want := []string{"inventory_non_negative", "layout_ownership", "revision_bound", "grid_consistency"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rules: %v", got)
	}
}

func TestInventoryNonNegativeRuleBlocks(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine(0))
	_, compID := seedDrawer(t, store, 1, 1, 1)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p, err := tx.CreatePart(domain.Part{OrgID: "org-1", SKU: "NUT", Name: "nut"})
		if err != nil {
			return err
		}
		_, err = tx.CreateInventory(domain.Inventory{PartID: p.ID, CompartmentID: compID, Quantity: -1, OrgID: "org-1"})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if rv.Result.Violations[0].Rule != "inventory_non_negative" {
		t.Fatalf("unexpected violation %+v", rv.Result.Violations[0])
	}
}

func TestRevisionBoundRuleBlocksOverflow(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine(1))
	drawerID, _ := seedDrawer(t, store, 1, 1, 1)
	var blueprintID string
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		d, _ := v.FindDrawer(drawerID)
		blueprintID = d.BlueprintID
		return nil
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for v := 1; v <= 2; v++ {
			if _, err := tx.CreateRevision(domain.BlueprintRevision{BlueprintID: blueprintID, Version: v, OrgID: "org-1"}); err != nil {
				return err
			}
		}
		return nil
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) || rv.Result.Violations[0].Rule != "revision_bound" {
		t.Fatalf("expected revision_bound violation, got %v", err)
	}
}

func TestGridConsistencyRuleWarns(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine(0))
	var res domain.Result
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		bp, err := tx.CreateBlueprint(domain.Blueprint{OrgID: "org-1", Name: "bench"})
		if err != nil {
			return err
		}
		rows, cols := 2, 2
		d, err := tx.CreateDrawer(domain.Drawer{BlueprintID: bp.ID, Width: 200, Height: 100, GridRows: &rows, GridCols: &cols})
		if err != nil {
			return err
		}
		_, err = tx.CreateCompartment(domain.Compartment{DrawerID: d.ID, Width: 10, Height: 10})
		return err
	})
	if err != nil {
		t.Fatalf("warnings must not block: %v", err)
	}
	res, err = NewGridConsistencyRule().Evaluate(context.Background(), viewOf(t, store), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected one warning, got %+v", res.Violations)
	}
	if res.HasBlocking() {
		t.Fatalf("grid consistency must not block")
	}
}

func TestGridConsistencyRuleIgnoresEmptyDrawer(t *testing.T) {
	store := memory.NewStore(nil)
	seedDrawer(t, store, 3, 3, 0)
	res, err := NewGridConsistencyRule().Evaluate(context.Background(), viewOf(t, store), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("empty drawer reported: %+v", res.Violations)
	}
}

// viewOf captures the committed state as a RuleView.
func viewOf(t *testing.T, store *memory.Store) domain.RuleView {
	t.Helper()
	var view domain.RuleView
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		rv, ok := tx.Snapshot().(domain.RuleView)
		if !ok {
			return errors.New("snapshot does not expose the rule view")
		}
		view = rv
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return view
}
