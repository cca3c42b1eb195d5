package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

// ModeratorActivity is one moderator's decision counts within a window.
type ModeratorActivity struct {
	ModeratorID uuid.UUID `json:"moderator_id"`
	Action      string    `json:"action"`
	Count       int64     `json:"count"`
}

// ModerationLogRepo is append-only: there are deliberately no update or
// delete operations on the audit trail.
type ModerationLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, row *domain.ModerationLog) error
	GetByResourceID(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) ([]*domain.ModerationLog, error)
	CountByResourceID(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) (int64, error)
	Activity(ctx context.Context, tx *gorm.DB, from, to *time.Time) ([]ModeratorActivity, error)
}

type moderationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModerationLogRepo(db *gorm.DB, baseLog *logger.Logger) ModerationLogRepo {
	return &moderationLogRepo{db: db, log: baseLog.With("repo", "ModerationLogRepo")}
}

func (r *moderationLogRepo) Append(ctx context.Context, tx *gorm.DB, row *domain.ModerationLog) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Create(row).Error
}

// GetByResourceID returns a resource's moderation history newest-first.
func (r *moderationLogRepo) GetByResourceID(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) ([]*domain.ModerationLog, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.ModerationLog
	if err := t.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moderationLogRepo) CountByResourceID(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var total int64
	if err := t.WithContext(ctx).
		Model(&domain.ModerationLog{}).
		Where("resource_id = ?", resourceID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *moderationLogRepo) Activity(ctx context.Context, tx *gorm.DB, from, to *time.Time) ([]ModeratorActivity, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).
		Model(&domain.ModerationLog{}).
		Select("moderator_id, action, COUNT(*) AS count")
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}
	var rows []ModeratorActivity
	if err := q.Group("moderator_id, action").Order("count DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
