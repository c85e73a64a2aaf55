package domain

import "time"

// EventType names a layout event published after commit.
type EventType string

// Layout and lock events.
const (
	EventLockAcquired      EventType = "lock.acquired"
	EventLockExtended      EventType = "lock.extended"
	EventLockReleased      EventType = "lock.released"
	EventLockForceReleased EventType = "lock.force_released"
	EventLayoutChanged     EventType = "layout.changed"
	EventRevisionCreated   EventType = "revision.created"
	EventRevisionRestored  EventType = "revision.restored"
	EventBlueprintDeleted  EventType = "blueprint.deleted"
)

// LayoutEvent notifies subscribers that a blueprint's lock or geometry changed.
type LayoutEvent struct {
	Type           EventType `json:"type"`
	BlueprintID    string    `json:"blueprint_id"`
	OrgID          string    `json:"org_id"`
	UserID         string    `json:"user_id"`
	PreviousHolder string    `json:"previous_holder,omitempty"`
	RevisionID     string    `json:"revision_id,omitempty"`
	Operation      string    `json:"operation,omitempty"`
	At             time.Time `json:"at"`
}
