package repos

import (
	"context"
	"testing"
	"time"

	"github.com/edushare/edushare-backend/internal/data/repos/testutil"
	"github.com/edushare/edushare-backend/internal/domain"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewUserRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "userrepo-school")
	user := testutil.SeedUser(t, ctx, tx, school.ID, "userrepo@example.com", domain.RoleStudent)

	got, err := repo.GetByID(ctx, tx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Email != "userrepo@example.com" {
		t.Fatalf("GetByID: unexpected result: %+v", got)
	}

	got, err = repo.GetByEmail(ctx, tx, "userrepo@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("GetByEmail: unexpected result: %+v", got)
	}

	if got.LastActiveAt != nil {
		t.Fatalf("expected nil last_active_at before touch")
	}
	if err := repo.TouchLastActive(ctx, tx, user.ID); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, user.ID)
	if err != nil {
		t.Fatalf("GetByID after touch: %v", err)
	}
	if got.LastActiveAt == nil {
		t.Fatalf("expected last_active_at set after touch")
	}

	active, err := repo.CountActiveSince(ctx, tx, school.ID, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountActiveSince: %v", err)
	}
	if active != 1 {
		t.Fatalf("CountActiveSince: expected 1, got %d", active)
	}

	active, err = repo.CountActiveSince(ctx, tx, school.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountActiveSince (future window): %v", err)
	}
	if active != 0 {
		t.Fatalf("CountActiveSince (future window): expected 0, got %d", active)
	}
}
