package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"binmap/internal/blob"
	"binmap/pkg/domain"
)

// ErrNoBlobStore is returned by background image operations when the
// service was built without a blob store.
var ErrNoBlobStore = errors.New("core: no blob store configured")

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.Validation("blueprint name must not be empty")
	}
	return name, nil
}

// CreateBlueprint adds an empty blueprint to the caller's organization.
func (s *Service) CreateBlueprint(ctx context.Context, caller domain.CallerContext, name string) (domain.Blueprint, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Blueprint{}, err
	}
	name, err := cleanName(name)
	if err != nil {
		return domain.Blueprint{}, err
	}
	var created domain.Blueprint
	err = s.run(ctx, "create_blueprint", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		var err error
		created, err = tx.CreateBlueprint(domain.Blueprint{OrgID: caller.OrgID, Name: name})
		return err
	})
	return created, err
}

// GetBlueprint fetches a blueprint of the caller's organization.
func (s *Service) GetBlueprint(ctx context.Context, caller domain.CallerContext, id string) (domain.Blueprint, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return domain.Blueprint{}, err
	}
	var bp domain.Blueprint
	err := s.view(ctx, "get_blueprint", caller, func(v domain.TransactionView) error {
		var err error
		bp, err = loadBlueprint(v, caller, id)
		return err
	})
	return bp, err
}

// ListBlueprints returns the organization's blueprints ordered by name.
func (s *Service) ListBlueprints(ctx context.Context, caller domain.CallerContext) ([]domain.Blueprint, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return nil, err
	}
	var out []domain.Blueprint
	err := s.view(ctx, "list_blueprints", caller, func(v domain.TransactionView) error {
		out = v.ListBlueprints(caller.OrgID)
		return nil
	})
	return out, err
}

// RenameBlueprint changes a blueprint's display name. Renaming does not
// touch geometry and is not lock-gated.
func (s *Service) RenameBlueprint(ctx context.Context, caller domain.CallerContext, id, name string) (domain.Blueprint, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Blueprint{}, err
	}
	name, err := cleanName(name)
	if err != nil {
		return domain.Blueprint{}, err
	}
	var updated domain.Blueprint
	err = s.run(ctx, "rename_blueprint", caller, false, func(tx domain.Transaction, _ func(domain.LayoutEvent)) error {
		bp, err := loadBlueprint(tx, caller, id)
		if err != nil {
			return err
		}
		updated, err = tx.UpdateBlueprint(bp.ID, func(b *domain.Blueprint) error {
			b.Name = name
			return nil
		})
		return err
	})
	return updated, err
}

// SetBackgroundImage uploads an image and attaches it to the blueprint,
// replacing any previous one. The old blob is removed after commit.
func (s *Service) SetBackgroundImage(ctx context.Context, caller domain.CallerContext, blueprintID string, r io.Reader, contentType string) (domain.Blueprint, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Blueprint{}, err
	}
	if s.blobs == nil {
		return domain.Blueprint{}, domain.Storage(ErrNoBlobStore, false)
	}
	if _, err := s.GetBlueprint(ctx, caller, blueprintID); err != nil {
		return domain.Blueprint{}, err
	}
	key := fmt.Sprintf("blueprints/%s/%s/%s", caller.OrgID, blueprintID, uuid.NewString())
	if _, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"blueprint-id": blueprintID, "uploaded-by": caller.UserID},
	}); err != nil {
		return domain.Blueprint{}, domain.Storage(fmt.Errorf("upload background image: %w", err), false)
	}

	var (
		updated  domain.Blueprint
		previous string
	)
	err := s.run(ctx, "set_background_image", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		previous = ""
		if bp.BackgroundImageID != nil {
			previous = *bp.BackgroundImageID
		}
		updated, err = tx.UpdateBlueprint(bp.ID, func(b *domain.Blueprint) error {
			k := key
			b.BackgroundImageID = &k
			return nil
		})
		if err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		s.dropBlob(ctx, key)
		return domain.Blueprint{}, err
	}
	s.dropBlob(ctx, previous)
	return updated, nil
}

// ClearBackgroundImage detaches and deletes the blueprint's image.
func (s *Service) ClearBackgroundImage(ctx context.Context, caller domain.CallerContext, blueprintID string) (domain.Blueprint, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return domain.Blueprint{}, err
	}
	var (
		updated  domain.Blueprint
		previous string
	)
	err := s.run(ctx, "clear_background_image", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		previous = ""
		if bp.BackgroundImageID == nil {
			updated = bp
			return nil
		}
		previous = *bp.BackgroundImageID
		updated, err = tx.UpdateBlueprint(bp.ID, func(b *domain.Blueprint) error {
			b.BackgroundImageID = nil
			return nil
		})
		if err != nil {
			return err
		}
		emit(domain.LayoutEvent{Type: domain.EventLayoutChanged, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		return domain.Blueprint{}, err
	}
	s.dropBlob(ctx, previous)
	return updated, nil
}

// BackgroundImageURL returns a short-lived download URL for the image.
func (s *Service) BackgroundImageURL(ctx context.Context, caller domain.CallerContext, blueprintID string) (string, error) {
	bp, err := s.GetBlueprint(ctx, caller, blueprintID)
	if err != nil {
		return "", err
	}
	if bp.BackgroundImageID == nil {
		return "", &domain.Error{
			Code: domain.CodeNotFound, Entity: domain.EntityBlueprint, ID: bp.ID,
			Message: "blueprint " + bp.ID + " has no background image",
		}
	}
	if s.blobs == nil {
		return "", domain.Storage(ErrNoBlobStore, true)
	}
	url, err := s.blobs.PresignURL(ctx, *bp.BackgroundImageID, blob.SignedURLOptions{Method: "GET"})
	if err != nil {
		return "", domain.Storage(fmt.Errorf("presign background image: %w", err), true)
	}
	return url, nil
}

// dropBlob deletes a blob best-effort. Failures are logged only.
func (s *Service) dropBlob(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if _, err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !blob.IsNotFound(err) {
		s.logger.Warn("delete background image", zap.String("key", key), zap.Error(err))
	}
}

// DeleteBlueprint removes a blueprint with its drawers, compartments and
// revisions. Compartments holding inventory block the delete unless force
// is set. A lock held by someone else always blocks it.
func (s *Service) DeleteBlueprint(ctx context.Context, caller domain.CallerContext, blueprintID string, force bool) (DeleteResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinElevatedRole); err != nil {
		return DeleteResult{}, err
	}
	var (
		out   DeleteResult
		image string
	)
	err := s.run(ctx, "delete_blueprint", caller, false, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out, image = DeleteResult{}, ""
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		if state := domain.LockStateOf(bp, s.now(), s.lockTTL); state.Locked() && !state.HeldBy(caller.UserID) {
			return &domain.Error{
				Code: domain.CodeLockedByOther, Entity: domain.EntityBlueprint, ID: bp.ID,
				Message: "blueprint " + bp.ID + " is locked by " + state.Holder,
			}
		}
		drawers := tx.DrawersByBlueprint(bp.ID)
		var comps []domain.Compartment
		for _, d := range drawers {
			comps = append(comps, tx.CompartmentsByDrawer(d.ID)...)
		}
		if err := s.guardCompartments(tx, comps, force); err != nil {
			return err
		}
		for _, c := range comps {
			written, err := s.removeCompartment(tx, caller, c, force)
			if err != nil {
				return err
			}
			out.Compartments++
			out.InventoryRemoved += written
		}
		for _, d := range drawers {
			if err := tx.DeleteDrawer(d.ID); err != nil {
				return err
			}
			out.Drawers++
		}
		for _, rev := range tx.RevisionsByBlueprint(bp.ID) {
			if err := tx.DeleteRevision(rev.ID); err != nil {
				return err
			}
			out.Revisions++
		}
		if err := tx.DeleteBlueprint(bp.ID); err != nil {
			return err
		}
		if bp.BackgroundImageID != nil {
			image = *bp.BackgroundImageID
		}
		emit(domain.LayoutEvent{Type: domain.EventBlueprintDeleted, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	s.dropBlob(ctx, image)
	return out, nil
}
