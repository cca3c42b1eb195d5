package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

type DownloadRecordRepo interface {
	// InsertUnique inserts the record unless one already exists for the same
	// (user, resource) pair. Returns true when a new row was created. A
	// duplicate is not an error: concurrent re-downloads race on the unique
	// index and the loser must converge to a no-op.
	InsertUnique(ctx context.Context, tx *gorm.DB, row *domain.DownloadRecord) (bool, error)
	GetByUserAndResource(ctx context.Context, tx *gorm.DB, userID, resourceID uuid.UUID) (*domain.DownloadRecord, error)
	CountByResourceID(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) (int64, error)
	CountBySchool(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID) (int64, error)
	CountDistinctUsers(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID) (int64, error)
}

type downloadRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDownloadRecordRepo(db *gorm.DB, baseLog *logger.Logger) DownloadRecordRepo {
	return &downloadRecordRepo{db: db, log: baseLog.With("repo", "DownloadRecordRepo")}
}

func (r *downloadRecordRepo) InsertUnique(ctx context.Context, tx *gorm.DB, row *domain.DownloadRecord) (bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *downloadRecordRepo) GetByUserAndResource(ctx context.Context, tx *gorm.DB, userID, resourceID uuid.UUID) (*domain.DownloadRecord, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.DownloadRecord
	if err := t.WithContext(ctx).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *downloadRecordRepo) CountByResourceID(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var total int64
	if err := t.WithContext(ctx).
		Model(&domain.DownloadRecord{}).
		Where("resource_id = ?", resourceID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CountBySchool counts download records against resources owned by a school.
// Pass uuid.Nil for the platform-wide total.
func (r *downloadRecordRepo) CountBySchool(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Model(&domain.DownloadRecord{})
	if schoolID != uuid.Nil {
		q = q.Joins("JOIN resource ON resource.id = download_record.resource_id").
			Where("resource.school_id = ?", schoolID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *downloadRecordRepo) CountDistinctUsers(ctx context.Context, tx *gorm.DB, schoolID uuid.UUID) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Model(&domain.DownloadRecord{})
	if schoolID != uuid.Nil {
		q = q.Joins("JOIN resource ON resource.id = download_record.resource_id").
			Where("resource.school_id = ?", schoolID)
	}
	var total int64
	if err := q.Distinct("download_record.user_id").Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
