package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

type SchoolRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *domain.School) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.School, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*domain.School, error)

	// AdjustCounters applies deltas to the cached school counters. Deltas may
	// be negative; counters are clamped at zero.
	AdjustCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, resourcesDelta, downloadsDelta int64) error
	// SetCounters overwrites the cached counters after a bulk recompute.
	SetCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, totalResources, totalDownloads, activeUsers int64) error
}

type schoolRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSchoolRepo(db *gorm.DB, baseLog *logger.Logger) SchoolRepo {
	return &schoolRepo{db: db, log: baseLog.With("repo", "SchoolRepo")}
}

func (r *schoolRepo) Create(ctx context.Context, tx *gorm.DB, row *domain.School) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Create(row).Error
}

func (r *schoolRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.School, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*domain.School
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *schoolRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*domain.School, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.School
	if err := t.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *schoolRepo) AdjustCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, resourcesDelta, downloadsDelta int64) error {
	t := tx
	if t == nil {
		t = r.db
	}
	updates := map[string]interface{}{}
	if resourcesDelta != 0 {
		updates["total_resources"] = gorm.Expr("GREATEST(total_resources + ?, 0)", resourcesDelta)
	}
	if downloadsDelta != 0 {
		updates["total_downloads"] = gorm.Expr("GREATEST(total_downloads + ?, 0)", downloadsDelta)
	}
	if len(updates) == 0 {
		return nil
	}
	return t.WithContext(ctx).
		Model(&domain.School{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *schoolRepo) SetCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, totalResources, totalDownloads, activeUsers int64) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Model(&domain.School{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_resources": totalResources,
			"total_downloads": totalDownloads,
			"active_users":    activeUsers,
		}).Error
}
