package core

import (
	"context"
	"fmt"
	"sort"

	"binmap/pkg/domain"
)

// captureState snapshots the live geometry of a blueprint, drawers in
// zIndex order with their compartments following the same order.
func captureState(v domain.TransactionView, blueprintID string) domain.RevisionState {
	state := domain.RevisionState{
		Drawers:      []domain.DrawerSnapshot{},
		Compartments: []domain.CompartmentSnapshot{},
	}
	for _, d := range v.DrawersByBlueprint(blueprintID) {
		state.Drawers = append(state.Drawers, domain.DrawerSnapshot{
			ID: d.ID, X: d.X, Y: d.Y, Width: d.Width, Height: d.Height,
			Rotation: d.Rotation, ZIndex: d.ZIndex,
			GridRows: d.GridRows, GridCols: d.GridCols, Label: d.Label,
		})
		for _, c := range v.CompartmentsByDrawer(d.ID) {
			state.Compartments = append(state.Compartments, domain.CompartmentSnapshot{
				ID: c.ID, DrawerID: c.DrawerID, X: c.X, Y: c.Y, Width: c.Width, Height: c.Height,
				Rotation: c.Rotation, ZIndex: c.ZIndex, Label: c.Label,
			})
		}
	}
	return state.Clone()
}

// appendRevision inserts the next version and evicts the oldest revisions
// so the live count stays within the limit. Versions are never reused:
// the blueprint remembers the highest version ever issued. Revisions named
// in keep, and the new one, are never evicted.
func (s *Service) appendRevision(tx domain.Transaction, blueprintID string, caller domain.CallerContext, state domain.RevisionState, description *string, keep ...string) (domain.BlueprintRevision, error) {
	bp, ok := tx.FindBlueprint(blueprintID)
	if !ok {
		return domain.BlueprintRevision{}, domain.NotFound(domain.EntityBlueprint, blueprintID)
	}
	existing := tx.RevisionsByBlueprint(blueprintID)
	version := bp.LastRevisionVersion
	for _, r := range existing {
		if r.Version > version {
			version = r.Version
		}
	}
	version++

	rev, err := tx.CreateRevision(domain.BlueprintRevision{
		BlueprintID: blueprintID,
		Version:     version,
		State:       state.Clone(),
		Description: description,
		CreatedBy:   caller.UserID,
		OrgID:       bp.OrgID,
	})
	if err != nil {
		return domain.BlueprintRevision{}, err
	}
	if _, err := tx.UpdateBlueprint(blueprintID, func(b *domain.Blueprint) error {
		b.LastRevisionVersion = version
		b.LayoutDirty = false
		return nil
	}); err != nil {
		return domain.BlueprintRevision{}, err
	}

	protected := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		protected[id] = struct{}{}
	}
	surplus := len(existing) + 1 - s.maxRevisions
	for _, r := range existing {
		if surplus <= 0 {
			break
		}
		if _, ok := protected[r.ID]; ok {
			continue
		}
		if err := tx.DeleteRevision(r.ID); err != nil {
			return domain.BlueprintRevision{}, err
		}
		surplus--
	}
	if surplus > 0 {
		return domain.BlueprintRevision{}, domain.Validation("revision limit %d leaves no room for a new revision of blueprint %s", s.maxRevisions, blueprintID)
	}
	return rev, nil
}

// CreateRevision records a revision of the blueprint. A nil state captures
// the live geometry.
func (s *Service) CreateRevision(ctx context.Context, caller domain.CallerContext, blueprintID string, state *domain.RevisionState, description *string) (domain.BlueprintRevision, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.BlueprintRevision{}, err
	}
	if state != nil {
		for _, d := range state.Drawers {
			if d.GridRows == nil && d.GridCols == nil {
				continue
			}
			if d.GridRows == nil || d.GridCols == nil {
				return domain.BlueprintRevision{}, domain.Validation("drawer %s: grid rows and cols must both be set", d.ID)
			}
			if err := validGrid(*d.GridRows, *d.GridCols); err != nil {
				return domain.BlueprintRevision{}, err
			}
		}
	}
	var rev domain.BlueprintRevision
	err := s.run(ctx, "create_revision", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		snapshot := captureState(tx, bp.ID)
		if state != nil {
			snapshot = state.Clone()
		}
		rev, err = s.appendRevision(tx, bp.ID, caller, snapshot, description)
		if err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventRevisionCreated, BlueprintID: bp.ID, OrgID: bp.OrgID, RevisionID: rev.ID})
		return nil
	})
	return rev, err
}

// RestoreRevision replaces the live layout with a revision's geometry. The
// live layout is saved as an auto-backup first and a marker revision records
// the restore, so two revisions are added. Eviction never removes the
// restored revision or the backup. Any live compartment holding
// inventory blocks the restore before anything is written. The whole
// sequence commits atomically; a failed call leaves the layout untouched
// but is not flagged retryable.
func (s *Service) RestoreRevision(ctx context.Context, caller domain.CallerContext, revisionID string, description *string) (RestoreResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return RestoreResult{}, err
	}
	var out RestoreResult
	err := s.run(ctx, "restore_revision", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		target, err := loadRevision(tx, caller, revisionID)
		if err != nil {
			return err
		}
		bp, err := s.verifyLock(tx, caller, target.BlueprintID)
		if err != nil {
			return err
		}

		drawers := tx.DrawersByBlueprint(bp.ID)
		var live []domain.Compartment
		for _, d := range drawers {
			live = append(live, tx.CompartmentsByDrawer(d.ID)...)
		}
		for _, c := range live {
			if holdsInventory(tx, c.ID) {
				return &domain.Error{
					Code:     domain.CodeInventoryConflict,
					Entity:   domain.EntityCompartment,
					ID:       c.ID,
					Blocking: []string{c.ID},
					Message:  fmt.Sprintf("Cannot restore: compartment %s contains inventory", c.ID),
				}
			}
		}

		backupDesc := fmt.Sprintf("Auto-backup before restoring to v%d", target.Version)
		backup, err := s.appendRevision(tx, bp.ID, caller, captureState(tx, bp.ID), &backupDesc, target.ID)
		if err != nil {
			return err
		}

		for _, c := range live {
			if _, err := s.removeCompartment(tx, caller, c, false); err != nil {
				return err
			}
		}
		for _, d := range drawers {
			if err := tx.DeleteDrawer(d.ID); err != nil {
				return err
			}
		}

		drawerIDs := make(map[string]string, len(target.State.Drawers))
		for _, snap := range target.State.Drawers {
			created, err := tx.CreateDrawer(domain.Drawer{
				BlueprintID: bp.ID,
				X:           snap.X, Y: snap.Y, Width: snap.Width, Height: snap.Height,
				Rotation: snap.Rotation, ZIndex: snap.ZIndex,
				GridRows: snap.GridRows, GridCols: snap.GridCols, Label: snap.Label,
			})
			if err != nil {
				return err
			}
			drawerIDs[snap.ID] = created.ID
		}
		for _, snap := range target.State.Compartments {
			drawerID, ok := drawerIDs[snap.DrawerID]
			if !ok {
				continue
			}
			if _, err := tx.CreateCompartment(domain.Compartment{
				DrawerID: drawerID,
				X:        snap.X, Y: snap.Y, Width: snap.Width, Height: snap.Height,
				Rotation: snap.Rotation, ZIndex: snap.ZIndex, Label: snap.Label,
			}); err != nil {
				return err
			}
		}

		markerDesc := fmt.Sprintf("Restored to v%d", target.Version)
		if description != nil && *description != "" {
			markerDesc = *description
		}
		marker, err := s.appendRevision(tx, bp.ID, caller, captureState(tx, bp.ID), &markerDesc, target.ID, backup.ID)
		if err != nil {
			return err
		}
		out = RestoreResult{
			Success:          true,
			Message:          fmt.Sprintf("Restored blueprint to v%d", target.Version),
			BackupRevisionID: backup.ID,
			NewRevisionID:    marker.ID,
		}
		emit(domain.LayoutEvent{Type: domain.EventRevisionCreated, BlueprintID: bp.ID, OrgID: bp.OrgID, RevisionID: backup.ID})
		emit(domain.LayoutEvent{Type: domain.EventRevisionRestored, BlueprintID: bp.ID, OrgID: bp.OrgID, RevisionID: marker.ID})
		return nil
	})
	if err != nil {
		return RestoreResult{}, err
	}
	return out, nil
}

// DeleteRevision removes one revision.
func (s *Service) DeleteRevision(ctx context.Context, caller domain.CallerContext, revisionID string) error {
	if err := domain.RequireRole(caller, "", domain.MinElevatedRole); err != nil {
		return err
	}
	return s.run(ctx, "delete_revision", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		rev, err := loadRevision(tx, caller, revisionID)
		if err != nil {
			return err
		}
		return tx.DeleteRevision(rev.ID)
	})
}

// DeleteAllRevisions empties a blueprint's ledger and returns how many
// revisions were removed. Version numbering continues where it left off.
func (s *Service) DeleteAllRevisions(ctx context.Context, caller domain.CallerContext, blueprintID string) (int, error) {
	return s.pruneRevisions(ctx, "delete_all_revisions", caller, blueprintID, 0)
}

// PruneRevisions deletes the oldest revisions so at most keep remain.
func (s *Service) PruneRevisions(ctx context.Context, caller domain.CallerContext, blueprintID string, keep int) (int, error) {
	if keep < 0 {
		return 0, domain.Validation("keep must not be negative, got %d", keep)
	}
	return s.pruneRevisions(ctx, "prune_revisions", caller, blueprintID, keep)
}

func (s *Service) pruneRevisions(ctx context.Context, op string, caller domain.CallerContext, blueprintID string, keep int) (int, error) {
	if err := domain.RequireRole(caller, "", domain.MinElevatedRole); err != nil {
		return 0, err
	}
	var removed int
	err := s.run(ctx, op, caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		removed = 0
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		revs := tx.RevisionsByBlueprint(bp.ID)
		for len(revs) > keep {
			if err := tx.DeleteRevision(revs[0].ID); err != nil {
				return err
			}
			revs = revs[1:]
			removed++
		}
		return nil
	})
	return removed, err
}

// ListRevisions returns the blueprint's revisions, newest first.
func (s *Service) ListRevisions(ctx context.Context, caller domain.CallerContext, blueprintID string) ([]domain.BlueprintRevision, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return nil, err
	}
	var out []domain.BlueprintRevision
	err := s.view(ctx, "list_revisions", caller, func(v domain.TransactionView) error {
		bp, err := loadBlueprint(v, caller, blueprintID)
		if err != nil {
			return err
		}
		out = v.RevisionsByBlueprint(bp.ID)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Version > out[j].Version })
		return nil
	})
	return out, err
}

// GetRevision fetches a revision by id.
func (s *Service) GetRevision(ctx context.Context, caller domain.CallerContext, revisionID string) (domain.BlueprintRevision, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return domain.BlueprintRevision{}, err
	}
	var rev domain.BlueprintRevision
	err := s.view(ctx, "get_revision", caller, func(v domain.TransactionView) error {
		var err error
		rev, err = loadRevision(v, caller, revisionID)
		return err
	})
	return rev, err
}

// GetLatestRevision returns the highest version, or false when the ledger
// is empty.
func (s *Service) GetLatestRevision(ctx context.Context, caller domain.CallerContext, blueprintID string) (domain.BlueprintRevision, bool, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return domain.BlueprintRevision{}, false, err
	}
	var (
		rev   domain.BlueprintRevision
		found bool
	)
	err := s.view(ctx, "get_latest_revision", caller, func(v domain.TransactionView) error {
		bp, err := loadBlueprint(v, caller, blueprintID)
		if err != nil {
			return err
		}
		revs := v.RevisionsByBlueprint(bp.ID)
		if len(revs) > 0 {
			rev, found = revs[len(revs)-1], true
		}
		return nil
	})
	return rev, found, err
}

// CountRevisions reports how full the ledger is.
func (s *Service) CountRevisions(ctx context.Context, caller domain.CallerContext, blueprintID string) (RevisionCount, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return RevisionCount{}, err
	}
	var out RevisionCount
	err := s.view(ctx, "count_revisions", caller, func(v domain.TransactionView) error {
		bp, err := loadBlueprint(v, caller, blueprintID)
		if err != nil {
			return err
		}
		n := len(v.RevisionsByBlueprint(bp.ID))
		out = RevisionCount{Count: n, Max: s.maxRevisions, NearLimit: n >= s.maxRevisions-domain.RevisionNearLimitMargin}
		return nil
	})
	return out, err
}

// PreviewRevision returns a revision with its element counts.
func (s *Service) PreviewRevision(ctx context.Context, caller domain.CallerContext, revisionID string) (RevisionPreview, error) {
	rev, err := s.GetRevision(ctx, caller, revisionID)
	if err != nil {
		return RevisionPreview{}, err
	}
	return RevisionPreview{
		Revision:         rev,
		DrawerCount:      len(rev.State.Drawers),
		CompartmentCount: len(rev.State.Compartments),
	}, nil
}
