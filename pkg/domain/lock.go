package domain

import "time"

// DefaultLockExpiration is LOCK_EXPIRATION_MS: a lock older than this is
// treated as released.
const DefaultLockExpiration = 300_000 * time.Millisecond

// LockState is the derived lock status of a blueprint. The zero value is
// Unlocked.
type LockState struct {
	Holder    string    `json:"holder,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Locked reports whether a valid lock exists.
func (s LockState) Locked() bool { return s.Holder != "" }

// HeldBy reports whether userID holds a valid lock.
func (s LockState) HeldBy(userID string) bool { return s.Locked() && s.Holder == userID }

// LockStateOf derives the lock state of b at now. A lock is valid iff
// lockedBy is set and now - lockTimestamp < ttl. Stale holders left on the
// record after expiry read as Unlocked.
func LockStateOf(b Blueprint, now time.Time, ttl time.Duration) LockState {
	if b.LockedBy == nil || *b.LockedBy == "" || b.LockTimestamp == nil {
		return LockState{}
	}
	if now.Sub(*b.LockTimestamp) >= ttl {
		return LockState{}
	}
	return LockState{Holder: *b.LockedBy, ExpiresAt: b.LockTimestamp.Add(ttl)}
}
