package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/edushare/edushare-backend/internal/data/repos/testutil"
	"github.com/edushare/edushare-backend/internal/domain"
)

func TestResourceRepoCRUD(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewResourceRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "crud-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "crud-uploader@example.com", domain.RoleTeacher)

	res := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)

	got, err := repo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.ID != res.ID {
		t.Fatalf("GetByID: unexpected result: %+v", got)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("GetByID: expected pending, got %s", got.Status)
	}

	missing, err := repo.GetByID(ctx, tx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByID (missing): expected nil, got %+v", missing)
	}

	byKey, err := repo.GetByStorageKey(ctx, tx, res.StorageKey)
	if err != nil {
		t.Fatalf("GetByStorageKey: %v", err)
	}
	if byKey == nil || byKey.ID != res.ID {
		t.Fatalf("GetByStorageKey: unexpected result: %+v", byKey)
	}
	noKey, err := repo.GetByStorageKey(ctx, tx, "resources/nowhere/"+uuid.NewString())
	if err != nil {
		t.Fatalf("GetByStorageKey (missing): %v", err)
	}
	if noKey != nil {
		t.Fatalf("GetByStorageKey (missing): expected nil, got %+v", noKey)
	}

	if err := repo.UpdateFields(ctx, tx, res.ID, map[string]interface{}{"title": "Updated title"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.Title != "Updated title" {
		t.Fatalf("UpdateFields: title not applied, got %q", got.Title)
	}

	if err := repo.FullDeleteByID(ctx, tx, res.ID); err != nil {
		t.Fatalf("FullDeleteByID: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("GetByID after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("FullDeleteByID: row still present")
	}
}

func TestResourceRepoUpdateStatusIf(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewResourceRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "cas-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "cas-uploader@example.com", domain.RoleTeacher)
	res := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)

	ok, err := repo.UpdateStatusIf(ctx, tx, res.ID, domain.StatusPending, map[string]interface{}{
		"status": domain.StatusApproved,
	})
	if err != nil {
		t.Fatalf("UpdateStatusIf: %v", err)
	}
	if !ok {
		t.Fatalf("UpdateStatusIf: expected the precondition to hold")
	}

	// The row is approved now, so the same precondition must fail.
	ok, err = repo.UpdateStatusIf(ctx, tx, res.ID, domain.StatusPending, map[string]interface{}{
		"status": domain.StatusRejected,
	})
	if err != nil {
		t.Fatalf("UpdateStatusIf (stale): %v", err)
	}
	if ok {
		t.Fatalf("UpdateStatusIf (stale): expected zero rows affected")
	}

	got, err := repo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("expected approved after losing CAS, got %s", got.Status)
	}
}

func TestResourceRepoIncrementDownloadCount(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewResourceRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "incr-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "incr-uploader@example.com", domain.RoleTeacher)
	res := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)

	for i := 0; i < 3; i++ {
		if err := repo.IncrementDownloadCount(ctx, tx, res.ID); err != nil {
			t.Fatalf("IncrementDownloadCount: %v", err)
		}
	}
	got, err := repo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DownloadCount != 3 {
		t.Fatalf("expected download_count 3, got %d", got.DownloadCount)
	}
}

func TestResourceRepoListFilters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewResourceRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "list-school")
	other := testutil.SeedSchool(t, ctx, tx, "list-other-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "list-uploader@example.com", domain.RoleTeacher)

	mathRes := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)
	scienceRes := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)
	pendingRes := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)
	otherRes := testutil.SeedResource(t, ctx, tx, other.ID, uploader.ID, domain.StatusApproved)

	if err := tx.Model(&domain.Resource{}).Where("id = ?", scienceRes.ID).Updates(map[string]interface{}{
		"subject": "science",
		"title":   "Photosynthesis lab",
		"tags":    datatypes.JSON([]byte(`["biology","lab"]`)),
	}).Error; err != nil {
		t.Fatalf("reseed science resource: %v", err)
	}

	rows, total, err := repo.List(ctx, tx, ResourceFilter{SchoolID: school.ID, Status: domain.StatusApproved})
	if err != nil {
		t.Fatalf("List by school+status: %v", err)
	}
	if total != 2 {
		t.Fatalf("List by school+status: expected 2, got %d", total)
	}
	for _, row := range rows {
		if row.ID == pendingRes.ID || row.ID == otherRes.ID {
			t.Fatalf("List returned a row the filter should exclude: %s", row.ID)
		}
	}

	rows, total, err = repo.List(ctx, tx, ResourceFilter{SchoolID: school.ID, Subject: "science"})
	if err != nil {
		t.Fatalf("List by subject: %v", err)
	}
	if total != 1 || rows[0].ID != scienceRes.ID {
		t.Fatalf("List by subject: expected only the science row, got total=%d", total)
	}

	rows, total, err = repo.List(ctx, tx, ResourceFilter{SchoolID: school.ID, Tag: "biology"})
	if err != nil {
		t.Fatalf("List by tag: %v", err)
	}
	if total != 1 || rows[0].ID != scienceRes.ID {
		t.Fatalf("List by tag: expected only the tagged row, got total=%d", total)
	}

	rows, total, err = repo.List(ctx, tx, ResourceFilter{SchoolID: school.ID, Query: "photosynthesis"})
	if err != nil {
		t.Fatalf("List by query: %v", err)
	}
	if total != 1 || rows[0].ID != scienceRes.ID {
		t.Fatalf("List by query: expected case-insensitive title match, got total=%d", total)
	}

	_ = mathRes
}

func TestResourceRepoListPendingFIFO(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewResourceRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "fifo-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "fifo-uploader@example.com", domain.RoleTeacher)

	first := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)
	second := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)

	// Force distinct created_at so the ordering is deterministic.
	if err := tx.Model(&domain.Resource{}).Where("id = ?", first.ID).
		UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate first resource: %v", err)
	}

	rows, total, err := repo.ListPending(ctx, tx, 1, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if total < 2 {
		t.Fatalf("ListPending: expected at least 2 pending, got %d", total)
	}
	idxFirst, idxSecond := -1, -1
	for i, row := range rows {
		if row.ID == first.ID {
			idxFirst = i
		}
		if row.ID == second.ID {
			idxSecond = i
		}
	}
	if idxFirst == -1 || idxSecond == -1 {
		t.Fatalf("ListPending: seeded rows missing from the queue")
	}
	if idxFirst > idxSecond {
		t.Fatalf("ListPending: expected oldest-first order, got first at %d, second at %d", idxFirst, idxSecond)
	}
}

func TestResourceRepoAggregates(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewResourceRepo(db, testutil.Logger(t))

	school := testutil.SeedSchool(t, ctx, tx, "agg-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "agg-uploader@example.com", domain.RoleTeacher)

	a := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)
	b := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)
	testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusRejected)

	if err := tx.Model(&domain.Resource{}).Where("id = ?", a.ID).
		UpdateColumn("download_count", 4).Error; err != nil {
		t.Fatalf("set download_count: %v", err)
	}
	if err := tx.Model(&domain.Resource{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"subject":        "science",
		"download_count": 1,
	}).Error; err != nil {
		t.Fatalf("set subject: %v", err)
	}

	approved, err := repo.CountByStatus(ctx, tx, school.ID, domain.StatusApproved)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if approved != 2 {
		t.Fatalf("CountByStatus: expected 2 approved, got %d", approved)
	}

	sum, err := repo.SumDownloadCounts(ctx, tx, school.ID)
	if err != nil {
		t.Fatalf("SumDownloadCounts: %v", err)
	}
	if sum != 5 {
		t.Fatalf("SumDownloadCounts: expected 5, got %d", sum)
	}

	subjects, err := repo.TopSubjects(ctx, tx, school.ID, 5)
	if err != nil {
		t.Fatalf("TopSubjects: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("TopSubjects: expected 2 subjects, got %d", len(subjects))
	}
}
