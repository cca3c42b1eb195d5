package domain

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
	SyncFailed  SyncStatus = "failed"
)

// DownloadRecord tracks one user's download of one resource. The unique index
// on (user_id, resource_id) makes download_count a distinct-downloader metric:
// re-downloads hit the conflict path and never create a second row.
type DownloadRecord struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_download_user_resource,unique,priority:1" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;index:idx_download_user_resource,unique,priority:2;index" json:"resource_id"`
	Resource   *Resource `gorm:"foreignKey:ResourceID;references:ID" json:"resource,omitempty"`

	DownloadedAt time.Time `gorm:"not null;default:now();index" json:"downloaded_at"`

	IP        string `gorm:"column:ip" json:"ip,omitempty"`
	UserAgent string `gorm:"column:user_agent" json:"user_agent,omitempty"`

	Offline    bool       `gorm:"not null;default:false" json:"offline"`
	SyncStatus SyncStatus `gorm:"type:text;not null;default:'synced';column:sync_status" json:"sync_status"`
}

func (DownloadRecord) TableName() string { return "download_record" }
