package rpc

import (
	"context"
	"encoding/json"
	"sort"

	"binmap/internal/core"
	"binmap/pkg/domain"
)

// operation decodes its argument record and calls the engine.
type operation func(ctx context.Context, svc *core.Service, caller domain.CallerContext, raw json.RawMessage) (any, error)

// call adapts a typed engine call into an operation.
func call[A any](fn func(ctx context.Context, svc *core.Service, caller domain.CallerContext, args A) (any, error)) operation {
	return func(ctx context.Context, svc *core.Service, caller domain.CallerContext, raw json.RawMessage) (any, error) {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fn(ctx, svc, caller, args)
	}
}

type blueprintArgs struct {
	BlueprintID string `json:"blueprint_id"`
}

type forceArgs struct {
	BlueprintID   string `json:"blueprint_id"`
	DrawerID      string `json:"drawer_id"`
	CompartmentID string `json:"compartment_id"`
	Force         bool   `json:"force"`
}

type revisionArgs struct {
	RevisionID  string  `json:"revision_id"`
	Description *string `json:"description,omitempty"`
}

type createDrawerArgs struct {
	BlueprintID string `json:"blueprint_id"`
	core.DrawerInput
}

type updateDrawerArgs struct {
	DrawerID string `json:"drawer_id"`
	core.DrawerPatch
}

type createCompartmentArgs struct {
	DrawerID string `json:"drawer_id"`
	core.CompartmentInput
}

type updateCompartmentArgs struct {
	CompartmentID string `json:"compartment_id"`
	core.CompartmentPatch
}

type updatePartArgs struct {
	PartID string `json:"part_id"`
	core.PartPatch
}

type latestRevision struct {
	Revision *domain.BlueprintRevision `json:"revision"`
	Found    bool                      `json:"found"`
}

var operations = map[string]operation{
	// Lock protocol.
	"acquire_lock": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.AcquireLock(ctx, c, a.BlueprintID)
	}),
	"release_lock": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.ReleaseLock(ctx, c, a.BlueprintID)
	}),
	"force_release_lock": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.ForceReleaseLock(ctx, c, a.BlueprintID)
	}),
	"lock_status": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.LockStatus(ctx, c, a.BlueprintID)
	}),

	// Blueprints.
	"create_blueprint": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		Name string `json:"name"`
	}) (any, error) {
		return svc.CreateBlueprint(ctx, c, a.Name)
	}),
	"get_blueprint": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.GetBlueprint(ctx, c, a.BlueprintID)
	}),
	"list_blueprints": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, _ struct{}) (any, error) {
		return svc.ListBlueprints(ctx, c)
	}),
	"rename_blueprint": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		BlueprintID string `json:"blueprint_id"`
		Name        string `json:"name"`
	}) (any, error) {
		return svc.RenameBlueprint(ctx, c, a.BlueprintID, a.Name)
	}),
	"delete_blueprint": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a forceArgs) (any, error) {
		return svc.DeleteBlueprint(ctx, c, a.BlueprintID, a.Force)
	}),
	"clear_background_image": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.ClearBackgroundImage(ctx, c, a.BlueprintID)
	}),
	"background_image_url": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		url, err := svc.BackgroundImageURL(ctx, c, a.BlueprintID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": url}, nil
	}),

	// Layout.
	"get_layout": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.GetLayout(ctx, c, a.BlueprintID)
	}),
	"create_drawer": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a createDrawerArgs) (any, error) {
		return svc.CreateDrawer(ctx, c, a.BlueprintID, a.DrawerInput)
	}),
	"update_drawer": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a updateDrawerArgs) (any, error) {
		return svc.UpdateDrawer(ctx, c, a.DrawerID, a.DrawerPatch)
	}),
	"delete_drawer": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a forceArgs) (any, error) {
		return svc.DeleteDrawer(ctx, c, a.DrawerID, a.Force)
	}),
	"create_compartment": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a createCompartmentArgs) (any, error) {
		return svc.CreateCompartment(ctx, c, a.DrawerID, a.CompartmentInput)
	}),
	"update_compartment": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a updateCompartmentArgs) (any, error) {
		return svc.UpdateCompartment(ctx, c, a.CompartmentID, a.CompartmentPatch)
	}),
	"delete_compartment": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a forceArgs) (any, error) {
		return svc.DeleteCompartment(ctx, c, a.CompartmentID, a.Force)
	}),
	"set_grid": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		DrawerID string `json:"drawer_id"`
		Rows     int    `json:"rows"`
		Cols     int    `json:"cols"`
	}) (any, error) {
		return svc.SetGrid(ctx, c, a.DrawerID, a.Rows, a.Cols)
	}),
	"split_drawer": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		DrawerID            string           `json:"drawer_id"`
		Orientation         core.Orientation `json:"orientation"`
		Position            float64          `json:"position"`
		TargetCompartmentID *string          `json:"target_compartment_id,omitempty"`
	}) (any, error) {
		return svc.SplitDrawer(ctx, c, a.DrawerID, a.Orientation, a.Position, a.TargetCompartmentID)
	}),
	"swap_compartments": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		A string `json:"a_id"`
		B string `json:"b_id"`
	}) (any, error) {
		return svc.SwapCompartments(ctx, c, a.A, a.B)
	}),

	// Revisions.
	"create_revision": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		BlueprintID string                `json:"blueprint_id"`
		State       *domain.RevisionState `json:"state,omitempty"`
		Description *string               `json:"description,omitempty"`
	}) (any, error) {
		return svc.CreateRevision(ctx, c, a.BlueprintID, a.State, a.Description)
	}),
	"restore_revision": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a revisionArgs) (any, error) {
		return svc.RestoreRevision(ctx, c, a.RevisionID, a.Description)
	}),
	"delete_revision": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a revisionArgs) (any, error) {
		if err := svc.DeleteRevision(ctx, c, a.RevisionID); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	}),
	"delete_all_revisions": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		n, err := svc.DeleteAllRevisions(ctx, c, a.BlueprintID)
		return removed(n, err)
	}),
	"prune_revisions": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		BlueprintID string `json:"blueprint_id"`
		Keep        int    `json:"keep"`
	}) (any, error) {
		n, err := svc.PruneRevisions(ctx, c, a.BlueprintID, a.Keep)
		return removed(n, err)
	}),
	"list_revisions": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.ListRevisions(ctx, c, a.BlueprintID)
	}),
	"get_revision": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a revisionArgs) (any, error) {
		return svc.GetRevision(ctx, c, a.RevisionID)
	}),
	"get_latest_revision": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		rev, found, err := svc.GetLatestRevision(ctx, c, a.BlueprintID)
		if err != nil {
			return nil, err
		}
		out := latestRevision{Found: found}
		if found {
			out.Revision = &rev
		}
		return out, nil
	}),
	"count_revisions": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a blueprintArgs) (any, error) {
		return svc.CountRevisions(ctx, c, a.BlueprintID)
	}),
	"preview_revision": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a revisionArgs) (any, error) {
		return svc.PreviewRevision(ctx, c, a.RevisionID)
	}),

	// Inventory.
	"create_part": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a core.PartInput) (any, error) {
		return svc.CreatePart(ctx, c, a)
	}),
	"update_part": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a updatePartArgs) (any, error) {
		return svc.UpdatePart(ctx, c, a.PartID, a.PartPatch)
	}),
	"delete_part": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		PartID string `json:"part_id"`
	}) (any, error) {
		return removed(svc.DeletePart(ctx, c, a.PartID))
	}),
	"list_parts": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, _ struct{}) (any, error) {
		return svc.ListParts(ctx, c)
	}),
	"check_in": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a core.StockChange) (any, error) {
		return svc.CheckIn(ctx, c, a)
	}),
	"check_out": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a core.StockChange) (any, error) {
		return svc.CheckOut(ctx, c, a)
	}),
	"move": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a core.StockMove) (any, error) {
		return svc.Move(ctx, c, a)
	}),
	"adjust": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a core.StockAdjustment) (any, error) {
		return svc.Adjust(ctx, c, a)
	}),
	"inventory_for_compartment": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		CompartmentID string `json:"compartment_id"`
	}) (any, error) {
		return svc.InventoryForCompartment(ctx, c, a.CompartmentID)
	}),
	"inventory_for_part": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		PartID string `json:"part_id"`
	}) (any, error) {
		return svc.InventoryForPart(ctx, c, a.PartID)
	}),
	"list_transactions": call(func(ctx context.Context, svc *core.Service, c domain.CallerContext, a struct {
		PartID string `json:"part_id"`
	}) (any, error) {
		return svc.ListTransactions(ctx, c, a.PartID)
	}),
}

func removed(n int, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]int{"removed": n}, nil
}

// Operations lists the registered operation names.
func Operations() []string {
	names := make([]string, 0, len(operations)+1)
	for name := range operations {
		names = append(names, name)
	}
	names = append(names, opSetBackgroundImage)
	sort.Strings(names)
	return names
}
