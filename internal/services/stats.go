package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

const (
	statsCacheTTL    = 5 * time.Minute
	activeUserWindow = 30 * 24 * time.Hour
	topSubjectsLimit = 5
	statsKeyPrefix   = "stats:school:"
	platformStatsKey = "stats:platform"
)

// SchoolStats is one school's derived counters. Source records where the
// numbers came from: "cache" (redis), "counters" (the cached School row), or
// "live" (recomputed from the resource/download tables).
type SchoolStats struct {
	SchoolID       uuid.UUID `json:"school_id"`
	TotalResources int64     `json:"total_resources"`
	TotalDownloads int64     `json:"total_downloads"`
	// DistinctDownloaders counts users with at least one download record;
	// TotalDownloads counts (user, resource) pairs, so the two differ once a
	// user downloads more than one resource.
	DistinctDownloaders int64                `json:"distinct_downloaders"`
	ActiveUsers         int64                `json:"active_users"`
	TopSubjects         []repos.SubjectCount `json:"top_subjects"`
	ComputedAt          time.Time            `json:"computed_at"`
	Source              string               `json:"source"`
}

type StatsService interface {
	StatsInvalidator

	// SchoolStats serves the fast path: redis, then the School row counters.
	// fresh forces a live recompute that also repairs counter drift.
	SchoolStats(ctx context.Context, schoolID uuid.UUID, fresh bool) (*SchoolStats, error)
	// Recompute aggregates from the source-of-truth tables, writes the School
	// counters back, and refreshes the cache.
	Recompute(ctx context.Context, schoolID uuid.UUID) (*SchoolStats, error)
	// PlatformStats aggregates across all schools, always live.
	PlatformStats(ctx context.Context) (*SchoolStats, error)
}

type statsService struct {
	db           *gorm.DB
	log          *logger.Logger
	rdb          *goredis.Client
	resourceRepo repos.ResourceRepo
	downloadRepo repos.DownloadRecordRepo
	schoolRepo   repos.SchoolRepo
	userRepo     repos.UserRepo
}

// NewStatsService accepts a nil redis client; the cache layer is then skipped
// and reads fall through to the School row counters.
func NewStatsService(
	db *gorm.DB,
	baseLog *logger.Logger,
	rdb *goredis.Client,
	resourceRepo repos.ResourceRepo,
	downloadRepo repos.DownloadRecordRepo,
	schoolRepo repos.SchoolRepo,
	userRepo repos.UserRepo,
) StatsService {
	return &statsService{
		db:           db,
		log:          baseLog.With("service", "StatsService"),
		rdb:          rdb,
		resourceRepo: resourceRepo,
		downloadRepo: downloadRepo,
		schoolRepo:   schoolRepo,
		userRepo:     userRepo,
	}
}

func (s *statsService) SchoolStats(ctx context.Context, schoolID uuid.UUID, fresh bool) (*SchoolStats, error) {
	if fresh {
		return s.Recompute(ctx, schoolID)
	}

	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, statsKeyPrefix+schoolID.String()).Bytes()
		if err == nil {
			var cached SchoolStats
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				cached.Source = "cache"
				return &cached, nil
			}
		} else if err != goredis.Nil {
			s.log.Warn("Stats cache read failed, falling back to counters", "school_id", schoolID, "error", err)
		}
	}

	school, err := s.schoolRepo.GetByID(ctx, nil, schoolID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load school: %w", err))
	}
	if school == nil {
		return nil, apierr.NotFound("school %s not found", schoolID)
	}
	subjects, err := s.resourceRepo.TopSubjects(ctx, nil, schoolID, topSubjectsLimit)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("top subjects: %w", err))
	}
	// Not tracked on the School row; queried live like the subjects are.
	downloaders, err := s.downloadRepo.CountDistinctUsers(ctx, nil, schoolID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("count distinct downloaders: %w", err))
	}

	stats := &SchoolStats{
		SchoolID:            schoolID,
		TotalResources:      school.TotalResources,
		TotalDownloads:      school.TotalDownloads,
		DistinctDownloaders: downloaders,
		ActiveUsers:         school.ActiveUsers,
		TopSubjects:         subjects,
		ComputedAt:          time.Now(),
		Source:              "counters",
	}
	s.cache(ctx, statsKeyPrefix+schoolID.String(), stats)
	return stats, nil
}

func (s *statsService) Recompute(ctx context.Context, schoolID uuid.UUID) (*SchoolStats, error) {
	school, err := s.schoolRepo.GetByID(ctx, nil, schoolID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load school: %w", err))
	}
	if school == nil {
		return nil, apierr.NotFound("school %s not found", schoolID)
	}

	stats, err := s.aggregate(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	if err := s.schoolRepo.SetCounters(ctx, nil, schoolID, stats.TotalResources, stats.TotalDownloads, stats.ActiveUsers); err != nil {
		return nil, apierr.Internal(fmt.Errorf("write back school counters: %w", err))
	}
	s.cache(ctx, statsKeyPrefix+schoolID.String(), stats)
	return stats, nil
}

func (s *statsService) PlatformStats(ctx context.Context) (*SchoolStats, error) {
	return s.aggregate(ctx, uuid.Nil)
}

// aggregate computes live numbers from the source-of-truth tables. Pass
// uuid.Nil for platform scope.
func (s *statsService) aggregate(ctx context.Context, schoolID uuid.UUID) (*SchoolStats, error) {
	totalResources, err := s.resourceRepo.CountByStatus(ctx, nil, schoolID, domain.StatusApproved)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("count approved resources: %w", err))
	}
	totalDownloads, err := s.downloadRepo.CountBySchool(ctx, nil, schoolID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("count downloads: %w", err))
	}
	downloaders, err := s.downloadRepo.CountDistinctUsers(ctx, nil, schoolID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("count distinct downloaders: %w", err))
	}
	activeUsers, err := s.userRepo.CountActiveSince(ctx, nil, schoolID, time.Now().Add(-activeUserWindow))
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("count active users: %w", err))
	}
	subjects, err := s.resourceRepo.TopSubjects(ctx, nil, schoolID, topSubjectsLimit)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("top subjects: %w", err))
	}

	return &SchoolStats{
		SchoolID:            schoolID,
		TotalResources:      totalResources,
		TotalDownloads:      totalDownloads,
		DistinctDownloaders: downloaders,
		ActiveUsers:         activeUsers,
		TopSubjects:         subjects,
		ComputedAt:          time.Now(),
		Source:              "live",
	}, nil
}

func (s *statsService) cache(ctx context.Context, key string, stats *SchoolStats) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, statsCacheTTL).Err(); err != nil {
		s.log.Warn("Stats cache write failed", "key", key, "error", err)
	}
}

func (s *statsService) Invalidate(ctx context.Context, schoolID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, statsKeyPrefix+schoolID.String(), platformStatsKey).Err(); err != nil {
		s.log.Warn("Stats cache invalidation failed", "school_id", schoolID, "error", err)
	}
}
