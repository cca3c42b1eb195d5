package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleAlumni  Role = "alumni"
)

func IsValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleAlumni:
		return true
	}
	return false
}

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name     string    `gorm:"not null;column:name" json:"name"`
	Email    string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password string    `gorm:"not null;column:password" json:"-"`
	Role     Role      `gorm:"type:text;not null;default:'student';index" json:"role"`

	SchoolID uuid.UUID `gorm:"type:uuid;not null;index" json:"school_id"`
	School   *School   `gorm:"foreignKey:SchoolID;references:ID" json:"school,omitempty"`

	LastActiveAt *time.Time `gorm:"column:last_active_at;index" json:"last_active_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "user" }

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }
