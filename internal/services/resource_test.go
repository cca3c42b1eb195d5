package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/data/repos/testutil"
	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
	"github.com/edushare/edushare-backend/internal/requestdata"
)

func TestNormalizeTags(t *testing.T) {
	tags, err := normalizeTags([]string{" Algebra ", "algebra", "GEOMETRY", "", "  "})
	if err != nil {
		t.Fatalf("normalizeTags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "algebra" || tags[1] != "geometry" {
		t.Fatalf("normalizeTags: unexpected result: %v", tags)
	}

	many := make([]string, 0, maxTagCount+1)
	for i := 0; i <= maxTagCount; i++ {
		many = append(many, string(rune('a'+i%26))+uuid.NewString())
	}
	if _, err := normalizeTags(many); !apierr.IsCode(err, "validation_error") {
		t.Fatalf("normalizeTags: expected validation_error for %d tags, got %v", len(many), err)
	}
}

// failingResourceRepo forces the metadata insert to fail so the compensating
// storage delete can be observed.
type failingResourceRepo struct {
	repos.ResourceRepo
}

func (f *failingResourceRepo) Create(ctx context.Context, tx *gorm.DB, row *domain.Resource) error {
	return errors.New("insert failed")
}

func TestResourceCreateCompensatesFailedInsert(t *testing.T) {
	driver := newMemDriver()
	svc := NewResourceService(nil, testutil.Logger(t), driver, &failingResourceRepo{}, nil, nil)

	rd := &requestdata.RequestData{UserID: uuid.New(), SchoolID: uuid.New(), Role: domain.RoleTeacher}
	_, err := svc.Create(context.Background(), rd, CreateResourceInput{
		Title:        "Grammar drills",
		Subject:      "english",
		Grade:        "7",
		OriginalName: "drills.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    5,
		File:         fileOf("bytes"),
	})
	if !apierr.IsCode(err, "internal_error") {
		t.Fatalf("expected internal_error, got %v", err)
	}
	if driver.count() != 0 {
		t.Fatalf("expected the uploaded object to be deleted after the failed insert, got %d objects", driver.count())
	}
}

func TestResourceCreateValidation(t *testing.T) {
	driver := newMemDriver()
	svc := NewResourceService(nil, testutil.Logger(t), driver, &failingResourceRepo{}, nil, nil)
	rd := &requestdata.RequestData{UserID: uuid.New(), SchoolID: uuid.New(), Role: domain.RoleTeacher}

	cases := []CreateResourceInput{
		{Subject: "math", Grade: "5", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1, File: fileOf("x")},
		{Title: "t", Grade: "5", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1, File: fileOf("x")},
		{Title: "t", Subject: "math", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1, File: fileOf("x")},
		{Title: "t", Subject: "math", Grade: "5", MimeType: "application/pdf", SizeBytes: 1, File: fileOf("x")},
		{Title: "t", Subject: "math", Grade: "5", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 0, File: fileOf("x")},
		{Title: "t", Subject: "math", Grade: "5", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1},
	}
	for i, in := range cases {
		if _, err := svc.Create(context.Background(), rd, in); !apierr.IsCode(err, "validation_error") {
			t.Fatalf("case %d: expected validation_error, got %v", i, err)
		}
	}
	if driver.count() != 0 {
		t.Fatalf("validation failures must not upload anything, got %d objects", driver.count())
	}
}

func newResourceHarness(t *testing.T, tx *gorm.DB) (ResourceService, *memDriver, repos.ResourceRepo, repos.SchoolRepo) {
	t.Helper()
	log := testutil.Logger(t)
	driver := newMemDriver()
	resourceRepo := repos.NewResourceRepo(tx, log)
	schoolRepo := repos.NewSchoolRepo(tx, log)
	svc := NewResourceService(tx, log, driver, resourceRepo, schoolRepo, nil)
	return svc, driver, resourceRepo, schoolRepo
}

func TestResourceCreateAndVisibility(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	svc, driver, _, _ := newResourceHarness(t, tx)

	school := testutil.SeedSchool(t, ctx, tx, "vis-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "vis-uploader@example.com", domain.RoleTeacher)
	admin := testutil.SeedUser(t, ctx, tx, school.ID, "vis-admin@example.com", domain.RoleAdmin)
	student := testutil.SeedUser(t, ctx, tx, school.ID, "vis-student@example.com", domain.RoleStudent)

	uploaderRD := &requestdata.RequestData{UserID: uploader.ID, SchoolID: school.ID, Role: domain.RoleTeacher}
	adminRD := &requestdata.RequestData{UserID: admin.ID, SchoolID: school.ID, Role: domain.RoleAdmin}
	studentRD := &requestdata.RequestData{UserID: student.ID, SchoolID: school.ID, Role: domain.RoleStudent}

	res, err := svc.Create(ctx, uploaderRD, CreateResourceInput{
		Title:        "Essay rubric",
		Description:  "grading rubric",
		Subject:      "english",
		Grade:        "8",
		Tags:         []string{"Writing", "writing", "rubric"},
		IsPublic:     true,
		OriginalName: "rubric.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    5,
		File:         fileOf("bytes"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != domain.StatusPending {
		t.Fatalf("new resources must start pending, got %s", res.Status)
	}
	if !driver.has(res.StorageKey) {
		t.Fatalf("expected bytes stored under %q", res.StorageKey)
	}
	if string(res.Tags) != `["writing","rubric"]` {
		t.Fatalf("tags not normalized: %s", res.Tags)
	}

	// Pending rows exist only for their uploader and admins.
	if _, err := svc.Get(ctx, uploaderRD, res.ID); err != nil {
		t.Fatalf("uploader Get: %v", err)
	}
	if _, err := svc.Get(ctx, adminRD, res.ID); err != nil {
		t.Fatalf("admin Get: %v", err)
	}
	if _, err := svc.Get(ctx, studentRD, res.ID); !apierr.IsCode(err, "not_found") {
		t.Fatalf("student Get: expected not_found, got %v", err)
	}
}

func TestResourceFileAccessRule(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	svc, _, _, _ := newResourceHarness(t, tx)

	school := testutil.SeedSchool(t, ctx, tx, "filekey-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "filekey-uploader@example.com", domain.RoleTeacher)
	admin := testutil.SeedUser(t, ctx, tx, school.ID, "filekey-admin@example.com", domain.RoleAdmin)
	student := testutil.SeedUser(t, ctx, tx, school.ID, "filekey-student@example.com", domain.RoleStudent)

	pending := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)
	approved := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)

	uploaderRD := &requestdata.RequestData{UserID: uploader.ID, SchoolID: school.ID, Role: domain.RoleTeacher}
	adminRD := &requestdata.RequestData{UserID: admin.ID, SchoolID: school.ID, Role: domain.RoleAdmin}
	studentRD := &requestdata.RequestData{UserID: student.ID, SchoolID: school.ID, Role: domain.RoleStudent}

	// A pending key is gated like the download endpoint: uploader and admin
	// only. The key itself is derivable from serialized metadata, so knowing
	// it grants nothing.
	if _, err := svc.AuthorizeFileAccess(ctx, studentRD, pending.StorageKey); !apierr.IsCode(err, "forbidden") {
		t.Fatalf("student access to pending bytes: expected forbidden, got %v", err)
	}
	if _, err := svc.AuthorizeFileAccess(ctx, uploaderRD, pending.StorageKey); err != nil {
		t.Fatalf("uploader access to own pending bytes: %v", err)
	}
	if _, err := svc.AuthorizeFileAccess(ctx, adminRD, pending.StorageKey); err != nil {
		t.Fatalf("admin access to pending bytes: %v", err)
	}

	got, err := svc.AuthorizeFileAccess(ctx, studentRD, approved.StorageKey)
	if err != nil {
		t.Fatalf("student access to approved bytes: %v", err)
	}
	if got.ID != approved.ID {
		t.Fatalf("resolved wrong resource: %s", got.ID)
	}

	if _, err := svc.AuthorizeFileAccess(ctx, adminRD, "resources/unknown/key"); !apierr.IsCode(err, "not_found") {
		t.Fatalf("unknown key: expected not_found, got %v", err)
	}
}

func TestResourceListForcesApprovedView(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	svc, _, _, _ := newResourceHarness(t, tx)

	school := testutil.SeedSchool(t, ctx, tx, "listview-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "listview-uploader@example.com", domain.RoleTeacher)
	student := testutil.SeedUser(t, ctx, tx, school.ID, "listview-student@example.com", domain.RoleStudent)

	approved := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)
	pending := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusPending)

	studentRD := &requestdata.RequestData{UserID: student.ID, SchoolID: school.ID, Role: domain.RoleStudent}
	uploaderRD := &requestdata.RequestData{UserID: uploader.ID, SchoolID: school.ID, Role: domain.RoleTeacher}

	rows, total, err := svc.List(ctx, studentRD, repos.ResourceFilter{SchoolID: school.ID})
	if err != nil {
		t.Fatalf("student List: %v", err)
	}
	if total != 1 || rows[0].ID != approved.ID {
		t.Fatalf("student List: expected only the approved row, got total=%d", total)
	}

	// A filter alone cannot bypass the forced view.
	_, total, err = svc.List(ctx, studentRD, repos.ResourceFilter{SchoolID: school.ID, Status: domain.StatusPending})
	if err != nil {
		t.Fatalf("student List (pending filter): %v", err)
	}
	if total != 0 {
		t.Fatalf("student List (pending filter): expected 0, got %d", total)
	}

	// Own-uploads view includes the pending row.
	_, total, err = svc.List(ctx, uploaderRD, repos.ResourceFilter{UploaderID: uploader.ID})
	if err != nil {
		t.Fatalf("uploader List: %v", err)
	}
	if total != 2 {
		t.Fatalf("uploader List: expected 2 own uploads, got %d", total)
	}

	_ = pending
}

func TestResourceUpdateDemotesApproved(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	svc, _, resourceRepo, schoolRepo := newResourceHarness(t, tx)

	school := testutil.SeedSchool(t, ctx, tx, "demote-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "demote-uploader@example.com", domain.RoleTeacher)
	admin := testutil.SeedUser(t, ctx, tx, school.ID, "demote-admin@example.com", domain.RoleAdmin)

	res := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)
	now := testutil.PtrTime(res.CreatedAt)
	if err := tx.Model(&domain.Resource{}).Where("id = ?", res.ID).Updates(map[string]interface{}{
		"moderated_by": admin.ID,
		"moderated_at": now,
	}).Error; err != nil {
		t.Fatalf("seed moderation fields: %v", err)
	}
	if err := schoolRepo.AdjustCounters(ctx, tx, school.ID, 1, 0); err != nil {
		t.Fatalf("seed school counter: %v", err)
	}

	uploaderRD := &requestdata.RequestData{UserID: uploader.ID, SchoolID: school.ID, Role: domain.RoleTeacher}
	updated, err := svc.Update(ctx, uploaderRD, res.ID, UpdateResourceInput{
		Title: testutil.PtrString("Fractions worksheet v2"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != domain.StatusPending {
		t.Fatalf("editing an approved resource must demote it, got %s", updated.Status)
	}
	if updated.ModeratedBy != nil || updated.ModeratedAt != nil || updated.ModerationNotes != "" {
		t.Fatalf("demotion must clear the prior decision fields: %+v", updated)
	}
	if updated.Title != "Fractions worksheet v2" {
		t.Fatalf("title not updated: %q", updated.Title)
	}

	schoolRow, err := schoolRepo.GetByID(ctx, tx, school.ID)
	if err != nil {
		t.Fatalf("load school: %v", err)
	}
	if schoolRow.TotalResources != 0 {
		t.Fatalf("expected total_resources back to 0 after demotion, got %d", schoolRow.TotalResources)
	}

	// Editing a pending resource keeps it pending.
	updated, err = svc.Update(ctx, uploaderRD, res.ID, UpdateResourceInput{
		Description: testutil.PtrString("now with answer key"),
	})
	if err != nil {
		t.Fatalf("Update (pending): %v", err)
	}
	if updated.Status != domain.StatusPending {
		t.Fatalf("pending resource changed status on edit: %s", updated.Status)
	}

	stored, err := resourceRepo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Description != "now with answer key" {
		t.Fatalf("description not updated: %q", stored.Description)
	}
}

func TestResourceUpdateForbiddenForOthers(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	svc, _, _, _ := newResourceHarness(t, tx)

	school := testutil.SeedSchool(t, ctx, tx, "editauth-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "editauth-uploader@example.com", domain.RoleTeacher)
	other := testutil.SeedUser(t, ctx, tx, school.ID, "editauth-other@example.com", domain.RoleTeacher)
	res := testutil.SeedResource(t, ctx, tx, school.ID, uploader.ID, domain.StatusApproved)

	otherRD := &requestdata.RequestData{UserID: other.ID, SchoolID: school.ID, Role: domain.RoleTeacher}
	if _, err := svc.Update(ctx, otherRD, res.ID, UpdateResourceInput{
		Title: testutil.PtrString("hijacked"),
	}); !apierr.IsCode(err, "forbidden") {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResourceDeleteReleasesBytes(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	svc, driver, resourceRepo, schoolRepo := newResourceHarness(t, tx)

	school := testutil.SeedSchool(t, ctx, tx, "del-school")
	uploader := testutil.SeedUser(t, ctx, tx, school.ID, "del-uploader@example.com", domain.RoleTeacher)
	uploaderRD := &requestdata.RequestData{UserID: uploader.ID, SchoolID: school.ID, Role: domain.RoleTeacher}

	res, err := svc.Create(ctx, uploaderRD, CreateResourceInput{
		Title:        "Old lesson plan",
		Subject:      "history",
		Grade:        "6",
		OriginalName: "plan.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    5,
		File:         fileOf("bytes"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, uploaderRD, res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if driver.has(res.StorageKey) {
		t.Fatalf("expected the stored object released on delete")
	}
	stored, err := resourceRepo.GetByID(ctx, tx, res.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored != nil {
		t.Fatalf("expected the metadata row gone, got %+v", stored)
	}

	_ = schoolRepo
}
