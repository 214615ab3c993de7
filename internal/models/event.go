package models

import "time"

// EventKind classifies an EventJournal entry.
type EventKind string

const (
	EventNodeJoined        EventKind = "node_joined"
	EventCommandQueued     EventKind = "command_queued"
	EventCommandsDelivered EventKind = "commands_delivered"
	EventLoginFailed       EventKind = "login_failed"
	EventLoginLocked       EventKind = "login_locked"
	EventProxyFailed       EventKind = "proxy_failed"
)

// Event is a coordinator journal row.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      EventKind `gorm:"index;not null" json:"kind"`
	NodeID    string    `gorm:"index" json:"node_id,omitempty"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
