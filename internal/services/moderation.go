package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

// IsLegalTransition is the moderation state table. pending is the initial
// state; approved and rejected can flip into each other so a moderator can
// revisit an earlier decision, but nothing transitions into pending here
// (admin edits demote approved resources back to pending outside the
// moderation workflow).
func IsLegalTransition(from, to domain.ResourceStatus) bool {
	switch from {
	case domain.StatusPending:
		return to == domain.StatusApproved || to == domain.StatusRejected
	case domain.StatusApproved:
		return to == domain.StatusRejected
	case domain.StatusRejected:
		return to == domain.StatusApproved
	}
	return false
}

type ModerationService interface {
	Approve(ctx context.Context, resourceID, moderatorID uuid.UUID, notes string) (*domain.Resource, error)
	Reject(ctx context.Context, resourceID, moderatorID uuid.UUID, notes string) (*domain.Resource, error)

	PendingQueue(ctx context.Context, page, limit int) ([]*domain.Resource, int64, error)
	History(ctx context.Context, resourceID uuid.UUID) ([]*domain.ModerationLog, error)
	Activity(ctx context.Context, from, to *time.Time) ([]repos.ModeratorActivity, error)
}

type moderationService struct {
	db           *gorm.DB
	log          *logger.Logger
	resourceRepo repos.ResourceRepo
	logRepo      repos.ModerationLogRepo
	schoolRepo   repos.SchoolRepo
	stats        StatsInvalidator
}

// StatsInvalidator lets write paths drop stale cached statistics without
// depending on the whole stats service.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, schoolID uuid.UUID)
}

func NewModerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	resourceRepo repos.ResourceRepo,
	logRepo repos.ModerationLogRepo,
	schoolRepo repos.SchoolRepo,
	stats StatsInvalidator,
) ModerationService {
	return &moderationService{
		db:           db,
		log:          baseLog.With("service", "ModerationService"),
		resourceRepo: resourceRepo,
		logRepo:      logRepo,
		schoolRepo:   schoolRepo,
		stats:        stats,
	}
}

func (s *moderationService) Approve(ctx context.Context, resourceID, moderatorID uuid.UUID, notes string) (*domain.Resource, error) {
	return s.moderate(ctx, resourceID, moderatorID, domain.StatusApproved, domain.ActionApproved, strings.TrimSpace(notes))
}

func (s *moderationService) Reject(ctx context.Context, resourceID, moderatorID uuid.UUID, notes string) (*domain.Resource, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, apierr.Validation("rejection notes are required")
	}
	return s.moderate(ctx, resourceID, moderatorID, domain.StatusRejected, domain.ActionRejected, notes)
}

// moderate applies one decision as a single transaction: a conditional status
// update (optimistic CAS on the previous status) plus the audit log append.
// Two concurrent moderators race on the CAS; the loser observes zero rows
// updated and gets InvalidTransition, with nothing written.
func (s *moderationService) moderate(
	ctx context.Context,
	resourceID, moderatorID uuid.UUID,
	to domain.ResourceStatus,
	action domain.ModerationAction,
	notes string,
) (*domain.Resource, error) {
	res, err := s.resourceRepo.GetByID(ctx, nil, resourceID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load resource: %w", err))
	}
	if res == nil {
		return nil, apierr.NotFound("resource %s not found", resourceID)
	}

	from := res.Status
	if !IsLegalTransition(from, to) {
		return nil, apierr.InvalidTransition("cannot move resource from %s to %s", from, to)
	}

	now := time.Now()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.resourceRepo.UpdateStatusIf(ctx, tx, resourceID, from, map[string]interface{}{
			"status":           to,
			"moderated_by":     moderatorID,
			"moderated_at":     now,
			"moderation_notes": notes,
		})
		if err != nil {
			return err
		}
		if !ok {
			// Someone else transitioned the row between our read and the
			// update. Surface the same error a stale caller would get.
			return apierr.InvalidTransition("resource %s is no longer %s", resourceID, from)
		}

		if err := s.logRepo.Append(ctx, tx, &domain.ModerationLog{
			ID:             uuid.New(),
			ResourceID:     resourceID,
			ModeratorID:    moderatorID,
			Action:         action,
			Notes:          notes,
			PreviousStatus: from,
			NewStatus:      to,
		}); err != nil {
			return fmt.Errorf("append moderation log: %w", err)
		}

		// The school counter tracks approved catalog entries.
		switch {
		case to == domain.StatusApproved && from != domain.StatusApproved:
			if err := s.schoolRepo.AdjustCounters(ctx, tx, res.SchoolID, 1, 0); err != nil {
				return fmt.Errorf("adjust school counters: %w", err)
			}
		case from == domain.StatusApproved && to != domain.StatusApproved:
			if err := s.schoolRepo.AdjustCounters(ctx, tx, res.SchoolID, -1, 0); err != nil {
				return fmt.Errorf("adjust school counters: %w", err)
			}
		}
		return nil
	})
	if txErr != nil {
		ae := apierr.From(txErr)
		if ae.Code == "internal_error" {
			s.log.Error("Moderation transition failed", "resource_id", resourceID, "to", to, "error", txErr)
		}
		return nil, ae
	}

	s.log.Info("Resource moderated",
		"resource_id", resourceID,
		"moderator_id", moderatorID,
		"previous_status", from,
		"new_status", to,
	)
	if s.stats != nil {
		s.stats.Invalidate(ctx, res.SchoolID)
	}

	res.Status = to
	res.ModeratedBy = &moderatorID
	res.ModeratedAt = &now
	res.ModerationNotes = notes
	return res, nil
}

func (s *moderationService) PendingQueue(ctx context.Context, page, limit int) ([]*domain.Resource, int64, error) {
	rows, total, err := s.resourceRepo.ListPending(ctx, nil, page, limit)
	if err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("list pending resources: %w", err))
	}
	return rows, total, nil
}

func (s *moderationService) History(ctx context.Context, resourceID uuid.UUID) ([]*domain.ModerationLog, error) {
	res, err := s.resourceRepo.GetByID(ctx, nil, resourceID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load resource: %w", err))
	}
	if res == nil {
		return nil, apierr.NotFound("resource %s not found", resourceID)
	}
	rows, err := s.logRepo.GetByResourceID(ctx, nil, resourceID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load moderation history: %w", err))
	}
	return rows, nil
}

func (s *moderationService) Activity(ctx context.Context, from, to *time.Time) ([]repos.ModeratorActivity, error) {
	rows, err := s.logRepo.Activity(ctx, nil, from, to)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("aggregate moderator activity: %w", err))
	}
	return rows, nil
}
