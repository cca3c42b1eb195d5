package domain

import (
	"time"

	"github.com/google/uuid"
)

// School scopes users and resources. The Total* columns are cached counters
// maintained incrementally on approve/delete/download; the source of truth is
// the resource and download_record tables (see services.StatsService.Recompute).
type School struct {
	ID   uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name string    `gorm:"uniqueIndex;not null;column:name" json:"name"`

	TotalResources int64 `gorm:"not null;default:0;column:total_resources" json:"total_resources"`
	TotalDownloads int64 `gorm:"not null;default:0;column:total_downloads" json:"total_downloads"`
	ActiveUsers    int64 `gorm:"not null;default:0;column:active_users" json:"active_users"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (School) TableName() string { return "school" }
