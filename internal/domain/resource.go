package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResourceStatus string

const (
	StatusPending  ResourceStatus = "pending"
	StatusApproved ResourceStatus = "approved"
	StatusRejected ResourceStatus = "rejected"
)

func IsValidStatus(s ResourceStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Resource is one uploaded piece of educational content plus its metadata.
// The file descriptor columns (original_name, storage_key, mime_type,
// size_bytes) are immutable after creation; edits only touch metadata.
type Resource struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Title       string         `gorm:"not null;column:title" json:"title"`
	Description string         `gorm:"type:text;not null;default:'';column:description" json:"description"`
	Subject     string         `gorm:"not null;index;column:subject" json:"subject"`
	Grade       string         `gorm:"not null;index;column:grade" json:"grade"`
	Strand      string         `gorm:"column:strand;index" json:"strand,omitempty"`
	Tags        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]';column:tags" json:"tags"`
	IsPublic    bool           `gorm:"not null;default:true;column:is_public" json:"is_public"`

	OriginalName string `gorm:"not null;column:original_name" json:"original_name"`
	StorageKey   string `gorm:"not null;uniqueIndex;column:storage_key" json:"-"`
	MimeType     string `gorm:"not null;column:mime_type" json:"mime_type"`
	SizeBytes    int64  `gorm:"not null;column:size_bytes" json:"size_bytes"`

	DownloadCount int64 `gorm:"not null;default:0;column:download_count" json:"download_count"`

	Status          ResourceStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ModerationNotes string         `gorm:"type:text;not null;default:'';column:moderation_notes" json:"moderation_notes,omitempty"`
	ModeratedBy     *uuid.UUID     `gorm:"type:uuid;column:moderated_by" json:"moderated_by,omitempty"`
	ModeratedAt     *time.Time     `gorm:"column:moderated_at" json:"moderated_at,omitempty"`

	UploaderID uuid.UUID `gorm:"type:uuid;not null;index" json:"uploader_id"`
	Uploader   *User     `gorm:"foreignKey:UploaderID;references:ID" json:"uploader,omitempty"`
	SchoolID   uuid.UUID `gorm:"type:uuid;not null;index" json:"school_id"`
	School     *School   `gorm:"foreignKey:SchoolID;references:ID" json:"school,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Resource) TableName() string { return "resource" }
