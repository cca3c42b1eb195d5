package domain

import (
	"time"

	"github.com/google/uuid"
)

type ModerationAction string

const (
	ActionApproved ModerationAction = "approved"
	ActionRejected ModerationAction = "rejected"
)

// ModerationLog is an append-only audit record of one moderation decision.
// Rows are written in the same transaction as the resource status update and
// are never mutated or deleted afterwards.
type ModerationLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ResourceID uuid.UUID `gorm:"type:uuid;not null;index" json:"resource_id"`
	Resource   *Resource `gorm:"foreignKey:ResourceID;references:ID" json:"resource,omitempty"`

	ModeratorID uuid.UUID `gorm:"type:uuid;not null;index" json:"moderator_id"`
	Moderator   *User     `gorm:"foreignKey:ModeratorID;references:ID" json:"moderator,omitempty"`

	Action         ModerationAction `gorm:"type:text;not null;index" json:"action"`
	Notes          string           `gorm:"type:text;not null;default:''" json:"notes,omitempty"`
	PreviousStatus ResourceStatus   `gorm:"type:text;not null;column:previous_status" json:"previous_status"`
	NewStatus      ResourceStatus   `gorm:"type:text;not null;column:new_status" json:"new_status"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ModerationLog) TableName() string { return "moderation_log" }
