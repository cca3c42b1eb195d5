package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/domain"
)

func SeedSchool(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *domain.School {
	tb.Helper()
	s := &domain.School{
		ID:   uuid.New(),
		Name: name,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed school: %v", err)
	}
	return s
}

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, schoolID uuid.UUID, email string, role domain.Role) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:       uuid.New(),
		Name:     "Test User",
		Email:    email,
		Password: "pw",
		Role:     role,
		SchoolID: schoolID,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedResource(tb testing.TB, ctx context.Context, tx *gorm.DB, schoolID, uploaderID uuid.UUID, status domain.ResourceStatus) *domain.Resource {
	tb.Helper()
	id := uuid.New()
	r := &domain.Resource{
		ID:           id,
		Title:        "Fractions worksheet",
		Description:  "practice sheet",
		Subject:      "math",
		Grade:        "5",
		Tags:         datatypes.JSON([]byte(`[]`)),
		IsPublic:     true,
		OriginalName: "fractions.pdf",
		StorageKey:   "resources/" + schoolID.String() + "/" + id.String(),
		MimeType:     "application/pdf",
		SizeBytes:    1024,
		Status:       status,
		UploaderID:   uploaderID,
		SchoolID:     schoolID,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed resource: %v", err)
	}
	return r
}

func PtrString(v string) *string { return &v }

func PtrBool(v bool) *bool { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
