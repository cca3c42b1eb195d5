package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/requestdata"
	"github.com/edushare/edushare-backend/internal/storage"
)

// ClientMeta is what the boundary knows about the downloading client.
type ClientMeta struct {
	IP        string
	UserAgent string
	Offline   bool
}

// DownloadGrant is the download response: a time-bounded URL, never raw bytes.
type DownloadGrant struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DownloadService interface {
	Download(ctx context.Context, rd *requestdata.RequestData, resourceID uuid.UUID, meta ClientMeta) (*DownloadGrant, error)
}

type downloadService struct {
	db           *gorm.DB
	log          *logger.Logger
	driver       storage.Driver
	resourceRepo repos.ResourceRepo
	downloadRepo repos.DownloadRecordRepo
	schoolRepo   repos.SchoolRepo
	userRepo     repos.UserRepo
	stats        StatsInvalidator
}

func NewDownloadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	driver storage.Driver,
	resourceRepo repos.ResourceRepo,
	downloadRepo repos.DownloadRecordRepo,
	schoolRepo repos.SchoolRepo,
	userRepo repos.UserRepo,
	stats StatsInvalidator,
) DownloadService {
	return &downloadService{
		db:           db,
		log:          baseLog.With("service", "DownloadService"),
		driver:       driver,
		resourceRepo: resourceRepo,
		downloadRepo: downloadRepo,
		schoolRepo:   schoolRepo,
		userRepo:     userRepo,
		stats:        stats,
	}
}

// Download authorizes the request, obtains the URL, and only then records the
// event. The record insert and counter increments share one transaction, and
// the counters move only when the insert actually created a row: each user
// counts once per resource, so download_count is a distinct-downloader
// metric, not a raw request count. A duplicate download is an idempotent
// success, which also absorbs retries from offline sync queues.
func (s *downloadService) Download(ctx context.Context, rd *requestdata.RequestData, resourceID uuid.UUID, meta ClientMeta) (*DownloadGrant, error) {
	res, err := s.resourceRepo.GetByID(ctx, nil, resourceID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load resource: %w", err))
	}
	if res == nil {
		return nil, apierr.NotFound("resource %s not found", resourceID)
	}
	if res.Status != domain.StatusApproved && !rd.IsAdmin() && rd.UserID != res.UploaderID {
		return nil, apierr.Forbidden("resource is not available for download")
	}

	url, expiresAt, err := s.driver.DownloadURL(ctx, res.StorageKey, res.OriginalName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Error("Resource metadata exists but bytes are gone", "resource_id", resourceID, "storage_key", res.StorageKey)
			return nil, apierr.NotFound("resource file is unavailable")
		}
		s.log.Error("Download URL generation failed", "resource_id", resourceID, "error", err)
		return nil, apierr.StorageFailure(err)
	}

	syncStatus := domain.SyncSynced
	if meta.Offline {
		syncStatus = domain.SyncPending
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.downloadRepo.InsertUnique(ctx, tx, &domain.DownloadRecord{
			ID:           uuid.New(),
			UserID:       rd.UserID,
			ResourceID:   resourceID,
			DownloadedAt: time.Now(),
			IP:           meta.IP,
			UserAgent:    meta.UserAgent,
			Offline:      meta.Offline,
			SyncStatus:   syncStatus,
		})
		if err != nil {
			return fmt.Errorf("insert download record: %w", err)
		}
		if !created {
			return nil
		}
		if err := s.resourceRepo.IncrementDownloadCount(ctx, tx, resourceID); err != nil {
			return fmt.Errorf("increment download count: %w", err)
		}
		if err := s.schoolRepo.AdjustCounters(ctx, tx, res.SchoolID, 0, 1); err != nil {
			return fmt.Errorf("adjust school counters: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, apierr.Internal(txErr)
	}

	if err := s.userRepo.TouchLastActive(ctx, nil, rd.UserID); err != nil {
		s.log.Warn("Failed to touch last_active_at", "user_id", rd.UserID, "error", err)
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, res.SchoolID)
	}

	return &DownloadGrant{URL: url, ExpiresAt: expiresAt}, nil
}
