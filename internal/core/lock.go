package core

import (
	"context"
	"time"

	"binmap/pkg/domain"
)

// Lock operation messages.
const (
	MsgLockAcquired      = "Lock acquired"
	MsgLockExtended      = "Lock extended"
	MsgLockHeldByOther   = "Blueprint is locked by another user"
	MsgLockReleased      = "Lock released"
	MsgLockNotHeld       = "Lock already expired or not held"
	MsgLockNotOwner      = "Lock is held by another user"
	MsgLockForceReleased = "Lock force released"
)

// LockResult is returned by AcquireLock and ReleaseLock.
type LockResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	LockedBy  string     `json:"locked_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// RevisionID is set when releasing the lock snapshotted the layout.
	RevisionID string `json:"revision_id,omitempty"`
}

// ForceReleaseResult is returned by ForceReleaseLock.
type ForceReleaseResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	PreviousHolder string `json:"previous_holder,omitempty"`
	RevisionID     string `json:"revision_id,omitempty"`
}

// AcquireLock takes, extends or reports the editing lock on a blueprint.
// A lock held by another user is not an error: Success is false and
// LockedBy names the holder.
func (s *Service) AcquireLock(ctx context.Context, caller domain.CallerContext, blueprintID string) (LockResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return LockResult{}, err
	}
	var out LockResult
	err := s.run(ctx, "acquire_lock", caller, true, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out = LockResult{}
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		now := s.now()
		state := domain.LockStateOf(bp, now, s.lockTTL)
		if state.Locked() && !state.HeldBy(caller.UserID) {
			expires := state.ExpiresAt
			out = LockResult{Success: false, Message: MsgLockHeldByOther, LockedBy: state.Holder, ExpiresAt: &expires}
			return nil
		}
		extended := state.HeldBy(caller.UserID)
		if _, err := tx.UpdateBlueprint(bp.ID, func(b *domain.Blueprint) error {
			user := caller.UserID
			ts := now
			b.LockedBy = &user
			b.LockTimestamp = &ts
			return nil
		}); err != nil {
			return err
		}
		expires := now.Add(s.lockTTL)
		out = LockResult{Success: true, Message: MsgLockAcquired, LockedBy: caller.UserID, ExpiresAt: &expires}
		event := domain.EventLockAcquired
		if extended {
			out.Message = MsgLockExtended
			event = domain.EventLockExtended
		}
		emit(domain.LayoutEvent{Type: event, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		return LockResult{}, err
	}
	if !out.Success {
		s.recordContention(ctx)
	}
	return out, nil
}

// ReleaseLock gives up the caller's lock. Releasing an absent or expired
// lock succeeds. When the layout changed while locked, a revision captures
// it.
func (s *Service) ReleaseLock(ctx context.Context, caller domain.CallerContext, blueprintID string) (LockResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinEditRole); err != nil {
		return LockResult{}, err
	}
	var out LockResult
	err := s.run(ctx, "release_lock", caller, true, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		out = LockResult{}
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		now := s.now()
		state := domain.LockStateOf(bp, now, s.lockTTL)
		switch {
		case !state.Locked():
			out = LockResult{Success: true, Message: MsgLockNotHeld}
			return nil
		case !state.HeldBy(caller.UserID):
			out = LockResult{Success: false, Message: MsgLockNotOwner, LockedBy: state.Holder}
			return nil
		}
		revID, err := s.clearLock(tx, bp, caller, emit)
		if err != nil {
			return err
		}
		out = LockResult{Success: true, Message: MsgLockReleased, RevisionID: revID}
		emit(domain.LayoutEvent{Type: domain.EventLockReleased, BlueprintID: bp.ID, OrgID: bp.OrgID})
		return nil
	})
	if err != nil {
		return LockResult{}, err
	}
	return out, nil
}

// ForceReleaseLock clears the lock regardless of holder.
func (s *Service) ForceReleaseLock(ctx context.Context, caller domain.CallerContext, blueprintID string) (ForceReleaseResult, error) {
	if err := domain.RequireRole(caller, "", domain.MinElevatedRole); err != nil {
		return ForceReleaseResult{}, err
	}
	var out ForceReleaseResult
	err := s.run(ctx, "force_release_lock", caller, true, func(tx domain.Transaction, emit func(domain.LayoutEvent)) error {
		bp, err := loadBlueprint(tx, caller, blueprintID)
		if err != nil {
			return err
		}
		out = ForceReleaseResult{Success: true, Message: MsgLockForceReleased}
		if bp.LockedBy != nil {
			out.PreviousHolder = *bp.LockedBy
		}
		revID, err := s.clearLock(tx, bp, caller, emit)
		if err != nil {
			return err
		}
		out.RevisionID = revID
		emit(domain.LayoutEvent{
			Type:           domain.EventLockForceReleased,
			BlueprintID:    bp.ID,
			OrgID:          bp.OrgID,
			PreviousHolder: out.PreviousHolder,
		})
		return nil
	})
	if err != nil {
		return ForceReleaseResult{}, err
	}
	return out, nil
}

// LockStatus returns the derived lock state without mutating anything.
func (s *Service) LockStatus(ctx context.Context, caller domain.CallerContext, blueprintID string) (domain.LockState, error) {
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		return domain.LockState{}, err
	}
	var state domain.LockState
	err := s.view(ctx, "lock_status", caller, func(v domain.TransactionView) error {
		bp, err := loadBlueprint(v, caller, blueprintID)
		if err != nil {
			return err
		}
		state = domain.LockStateOf(bp, s.now(), s.lockTTL)
		return nil
	})
	return state, err
}

// clearLock removes lock fields and snapshots the layout when dirty. It
// returns the id of the snapshot revision, if one was taken.
func (s *Service) clearLock(tx domain.Transaction, bp domain.Blueprint, caller domain.CallerContext, emit func(domain.LayoutEvent)) (string, error) {
	var revID string
	if bp.LayoutDirty {
		desc := "Changes saved on lock release"
		rev, err := s.appendRevision(tx, bp.ID, caller, captureState(tx, bp.ID), &desc)
		if err != nil {
			return "", err
		}
		revID = rev.ID
		emit(domain.LayoutEvent{Type: domain.EventRevisionCreated, BlueprintID: bp.ID, OrgID: bp.OrgID, RevisionID: rev.ID})
	}
	_, err := tx.UpdateBlueprint(bp.ID, func(b *domain.Blueprint) error {
		b.LockedBy = nil
		b.LockTimestamp = nil
		return nil
	})
	return revID, err
}

// verifyLock gates every geometry mutation on a valid lock held by caller.
func (s *Service) verifyLock(v domain.TransactionView, caller domain.CallerContext, blueprintID string) (domain.Blueprint, error) {
	bp, err := loadBlueprint(v, caller, blueprintID)
	if err != nil {
		return domain.Blueprint{}, err
	}
	state := domain.LockStateOf(bp, s.now(), s.lockTTL)
	switch {
	case !state.Locked():
		return domain.Blueprint{}, &domain.Error{
			Code: domain.CodeNotLocked, Entity: domain.EntityBlueprint, ID: bp.ID,
			Message: "blueprint " + bp.ID + " is not locked; acquire the lock before editing",
		}
	case !state.HeldBy(caller.UserID):
		return domain.Blueprint{}, &domain.Error{
			Code: domain.CodeLockedByOther, Entity: domain.EntityBlueprint, ID: bp.ID,
			Message: "blueprint " + bp.ID + " is locked by " + state.Holder,
		}
	}
	return bp, nil
}

// touchLayout marks the blueprint's geometry as changed and bumps updatedAt.
func touchLayout(tx domain.Transaction, blueprintID string) error {
	_, err := tx.UpdateBlueprint(blueprintID, func(b *domain.Blueprint) error {
		b.LayoutDirty = true
		return nil
	})
	return err
}
