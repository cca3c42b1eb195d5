package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

// ResourceFilter is the catalog query surface. Zero values mean "no filter".
type ResourceFilter struct {
	Query      string
	Subject    string
	Grade      string
	Strand     string
	Tag        string
	SchoolID   uuid.UUID
	UploaderID uuid.UUID
	Status     domain.ResourceStatus

	Page  int
	Limit int
}

type ResourceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *domain.Resource) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Resource, error)
	GetByStorageKey(ctx context.Context, tx *gorm.DB, key string) (*domain.Resource, error)
	List(ctx context.Context, tx *gorm.DB, filter ResourceFilter) ([]*domain.Resource, int64, error)
	ListPending(ctx context.Context, tx *gorm.DB, page, limit int) ([]*domain.Resource, int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	// UpdateStatusIf applies updates only when the row still has the expected
	// status. Returns false when the precondition did not hold (the row is
	// gone or another writer got there first).
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, expect domain.ResourceStatus, updates map[string]interface{}) (bool, error)

	IncrementDownloadCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	CountByStatus(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID, status domain.ResourceStatus) (int64, error)
	TopSubjects(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID, limit int) ([]SubjectCount, error)
	SumDownloadCounts(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID) (int64, error)
}

type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int64  `json:"count"`
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{db: db, log: baseLog.With("repo", "ResourceRepo")}
}

func (r *resourceRepo) Create(ctx context.Context, tx *gorm.DB, row *domain.Resource) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Create(row).Error
}

func (r *resourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Resource, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*domain.Resource
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// GetByStorageKey resolves the resource owning a storage key. The file route
// authorizes byte reads through this lookup.
func (r *resourceRepo) GetByStorageKey(ctx context.Context, tx *gorm.DB, key string) (*domain.Resource, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if key == "" {
		return nil, nil
	}
	var out []*domain.Resource
	if err := t.WithContext(ctx).Where("storage_key = ?", key).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func applyFilter(q *gorm.DB, f ResourceFilter) *gorm.DB {
	if qs := strings.TrimSpace(f.Query); qs != "" {
		like := "%" + qs + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if f.Grade != "" {
		q = q.Where("grade = ?", f.Grade)
	}
	if f.Strand != "" {
		q = q.Where("strand = ?", f.Strand)
	}
	if f.Tag != "" {
		q = q.Where("tags @> ?", `["`+f.Tag+`"]`)
	}
	if f.SchoolID != uuid.Nil {
		q = q.Where("school_id = ?", f.SchoolID)
	}
	if f.UploaderID != uuid.Nil {
		q = q.Where("uploader_id = ?", f.UploaderID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// PageWindow normalizes pagination input: limit defaults to 20 and caps at
// 100, page starts at 1. The response envelope uses the same clamp so the
// reported page math matches what a query actually returns.
func PageWindow(page, limit int) (offset, lim int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return (page - 1) * limit, limit
}

func (r *resourceRepo) List(ctx context.Context, tx *gorm.DB, filter ResourceFilter) ([]*domain.Resource, int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	base := applyFilter(t.WithContext(ctx).Model(&domain.Resource{}), filter)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := PageWindow(filter.Page, filter.Limit)
	var rows []*domain.Resource
	if err := base.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListPending returns the moderation queue oldest-first so new uploads cannot
// jump ahead of older pending ones.
func (r *resourceRepo) ListPending(ctx context.Context, tx *gorm.DB, page, limit int) ([]*domain.Resource, int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	base := t.WithContext(ctx).Model(&domain.Resource{}).Where("status = ?", domain.StatusPending)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, lim := PageWindow(page, limit)
	var rows []*domain.Resource
	if err := base.
		Order("created_at ASC").
		Offset(offset).
		Limit(lim).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *resourceRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()
	return t.WithContext(ctx).
		Model(&domain.Resource{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *resourceRepo) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, expect domain.ResourceStatus, updates map[string]interface{}) (bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	updates["updated_at"] = time.Now()
	res := t.WithContext(ctx).
		Model(&domain.Resource{}).
		Where("id = ? AND status = ?", id, expect).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *resourceRepo) IncrementDownloadCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Model(&domain.Resource{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

func (r *resourceRepo) FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Where("id = ?", id).Delete(&domain.Resource{}).Error
}

func (r *resourceRepo) CountByStatus(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID, status domain.ResourceStatus) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Model(&domain.Resource{}).Where("status = ?", status)
	if schoolID != uuid.Nil {
		q = q.Where("school_id = ?", schoolID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *resourceRepo) TopSubjects(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID, limit int) ([]SubjectCount, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 5
	}
	q := t.WithContext(ctx).
		Model(&domain.Resource{}).
		Select("subject, COUNT(*) AS count").
		Where("status = ?", domain.StatusApproved)
	if schoolID != uuid.Nil {
		q = q.Where("school_id = ?", schoolID)
	}
	var rows []SubjectCount
	if err := q.Group("subject").Order("count DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *resourceRepo) SumDownloadCounts(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).
		Model(&domain.Resource{}).
		Select("COALESCE(SUM(download_count), 0)")
	if schoolID != uuid.Nil {
		q = q.Where("school_id = ?", schoolID)
	}
	var total int64
	if err := q.Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
