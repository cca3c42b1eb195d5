package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/requestdata"
	"github.com/edushare/edushare-backend/internal/storage"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxTagCount       = 20
	relatedLimit      = 6
)

type CreateResourceInput struct {
	Title       string
	Description string
	Subject     string
	Grade       string
	Strand      string
	Tags        []string
	IsPublic    bool

	OriginalName string
	MimeType     string
	SizeBytes    int64
	File         io.Reader
}

type UpdateResourceInput struct {
	Title       *string
	Description *string
	Subject     *string
	Grade       *string
	Strand      *string
	Tags        []string
	IsPublic    *bool
}

type ResourceService interface {
	Create(ctx context.Context, rd *requestdata.RequestData, in CreateResourceInput) (*domain.Resource, error)
	Get(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID) (*domain.Resource, error)
	List(ctx context.Context, rd *requestdata.RequestData, filter repos.ResourceFilter) ([]*domain.Resource, int64, error)
	Related(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID) ([]*domain.Resource, error)
	Update(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID, in UpdateResourceInput) (*domain.Resource, error)
	Delete(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID) error

	// AuthorizeFileAccess resolves the resource owning a storage key and
	// applies the download rule before any bytes are handed out. Storage keys
	// are derivable from serialized metadata, so knowing one must not grant
	// access on its own.
	AuthorizeFileAccess(ctx context.Context, rd *requestdata.RequestData, key string) (*domain.Resource, error)
}

type resourceService struct {
	db           *gorm.DB
	log          *logger.Logger
	driver       storage.Driver
	resourceRepo repos.ResourceRepo
	schoolRepo   repos.SchoolRepo
	stats        StatsInvalidator
}

func NewResourceService(
	db *gorm.DB,
	baseLog *logger.Logger,
	driver storage.Driver,
	resourceRepo repos.ResourceRepo,
	schoolRepo repos.SchoolRepo,
	stats StatsInvalidator,
) ResourceService {
	return &resourceService{
		db:           db,
		log:          baseLog.With("service", "ResourceService"),
		driver:       driver,
		resourceRepo: resourceRepo,
		schoolRepo:   schoolRepo,
		stats:        stats,
	}
}

func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > maxTagCount {
		return nil, apierr.Validation("too many tags: %d (max %d)", len(out), maxTagCount)
	}
	return out, nil
}

func validateCreate(in *CreateResourceInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Grade = strings.TrimSpace(in.Grade)
	in.Strand = strings.TrimSpace(in.Strand)
	switch {
	case in.Title == "":
		return apierr.Validation("title is required")
	case len(in.Title) > maxTitleLen:
		return apierr.Validation("title exceeds %d characters", maxTitleLen)
	case len(in.Description) > maxDescriptionLen:
		return apierr.Validation("description exceeds %d characters", maxDescriptionLen)
	case in.Subject == "":
		return apierr.Validation("subject is required")
	case in.Grade == "":
		return apierr.Validation("grade is required")
	case in.OriginalName == "":
		return apierr.Validation("file name is required")
	case in.SizeBytes <= 0:
		return apierr.Validation("file is empty")
	case in.File == nil:
		return apierr.Validation("file is required")
	}
	return nil
}

// Create uploads the bytes first and writes the metadata row second. There is
// no distributed transaction between the two stores, so a failed metadata
// insert is compensated by deleting the just-uploaded object rather than
// leaving a pending record whose bytes never landed.
func (s *resourceService) Create(ctx context.Context, rd *requestdata.RequestData, in CreateResourceInput) (*domain.Resource, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("encode tags: %w", err))
	}

	resourceID := uuid.New()
	key := fmt.Sprintf("resources/%s/%s", rd.SchoolID, resourceID)

	if err := s.driver.Store(ctx, key, in.File, in.SizeBytes, in.MimeType); err != nil {
		s.log.Error("Upload to storage failed", "storage_key", key, "error", err)
		return nil, apierr.StorageFailure(err)
	}

	res := &domain.Resource{
		ID:           resourceID,
		Title:        in.Title,
		Description:  in.Description,
		Subject:      in.Subject,
		Grade:        in.Grade,
		Strand:       in.Strand,
		Tags:         datatypes.JSON(tagsJSON),
		IsPublic:     in.IsPublic,
		OriginalName: in.OriginalName,
		StorageKey:   key,
		MimeType:     in.MimeType,
		SizeBytes:    in.SizeBytes,
		Status:       domain.StatusPending,
		UploaderID:   rd.UserID,
		SchoolID:     rd.SchoolID,
	}
	if err := s.resourceRepo.Create(ctx, nil, res); err != nil {
		s.log.Error("Resource insert failed after upload, compensating", "storage_key", key, "error", err)
		if delErr := s.driver.Delete(ctx, key); delErr != nil {
			s.log.Error("Compensating storage delete failed, orphaned object", "storage_key", key, "error", delErr)
		}
		return nil, apierr.Internal(fmt.Errorf("create resource: %w", err))
	}

	s.log.Info("Resource created", "resource_id", res.ID, "uploader_id", rd.UserID, "school_id", rd.SchoolID)
	return res, nil
}

// canSee is the visibility rule applied to every read path: non-approved
// resources exist only for their uploader and admins.
func canSee(rd *requestdata.RequestData, res *domain.Resource) bool {
	if res.Status == domain.StatusApproved {
		return true
	}
	if rd == nil {
		return false
	}
	return rd.IsAdmin() || rd.UserID == res.UploaderID
}

func (s *resourceService) Get(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID) (*domain.Resource, error) {
	res, err := s.resourceRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load resource: %w", err))
	}
	if res == nil || !canSee(rd, res) {
		// Hidden rows 404 rather than 403 so their existence does not leak.
		return nil, apierr.NotFound("resource %s not found", id)
	}
	return res, nil
}

// AuthorizeFileAccess gates the local-mode byte handoff with the same rule
// Download enforces: approved, or the caller is the uploader or an admin.
func (s *resourceService) AuthorizeFileAccess(ctx context.Context, rd *requestdata.RequestData, key string) (*domain.Resource, error) {
	res, err := s.resourceRepo.GetByStorageKey(ctx, nil, key)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("resolve storage key: %w", err))
	}
	if res == nil {
		return nil, apierr.NotFound("file not found")
	}
	if res.Status != domain.StatusApproved && (rd == nil || (!rd.IsAdmin() && rd.UserID != res.UploaderID)) {
		return nil, apierr.Forbidden("resource is not available for download")
	}
	return res, nil
}

// List forces the approved-only view on callers who are neither admins nor
// asking for their own uploads.
func (s *resourceService) List(ctx context.Context, rd *requestdata.RequestData, filter repos.ResourceFilter) ([]*domain.Resource, int64, error) {
	ownUploads := rd != nil && filter.UploaderID != uuid.Nil && filter.UploaderID == rd.UserID
	if rd == nil || (!rd.IsAdmin() && !ownUploads) {
		filter.Status = domain.StatusApproved
	}
	rows, total, err := s.resourceRepo.List(ctx, nil, filter)
	if err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("list resources: %w", err))
	}
	return rows, total, nil
}

func (s *resourceService) Related(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID) ([]*domain.Resource, error) {
	res, err := s.Get(ctx, rd, id)
	if err != nil {
		return nil, err
	}
	rows, _, err := s.resourceRepo.List(ctx, nil, repos.ResourceFilter{
		Subject: res.Subject,
		Grade:   res.Grade,
		Status:  domain.StatusApproved,
		Limit:   relatedLimit + 1,
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list related resources: %w", err))
	}
	out := make([]*domain.Resource, 0, relatedLimit)
	for _, row := range rows {
		if row.ID == res.ID {
			continue
		}
		out = append(out, row)
		if len(out) == relatedLimit {
			break
		}
	}
	return out, nil
}

// Update edits metadata only; the file descriptor is immutable. Editing an
// approved resource sends it back through moderation: status resets to
// pending and the prior decision fields are cleared. No moderation log entry
// is written for the demotion.
func (s *resourceService) Update(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID, in UpdateResourceInput) (*domain.Resource, error) {
	res, err := s.resourceRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load resource: %w", err))
	}
	if res == nil || !canSee(rd, res) {
		return nil, apierr.NotFound("resource %s not found", id)
	}
	if !rd.IsAdmin() && rd.UserID != res.UploaderID {
		return nil, apierr.Forbidden("only the uploader or an admin can edit a resource")
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apierr.Validation("title cannot be empty")
		}
		if len(title) > maxTitleLen {
			return nil, apierr.Validation("title exceeds %d characters", maxTitleLen)
		}
		updates["title"] = title
	}
	if in.Description != nil {
		if len(*in.Description) > maxDescriptionLen {
			return nil, apierr.Validation("description exceeds %d characters", maxDescriptionLen)
		}
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Subject != nil {
		subject := strings.TrimSpace(*in.Subject)
		if subject == "" {
			return nil, apierr.Validation("subject cannot be empty")
		}
		updates["subject"] = subject
	}
	if in.Grade != nil {
		grade := strings.TrimSpace(*in.Grade)
		if grade == "" {
			return nil, apierr.Validation("grade cannot be empty")
		}
		updates["grade"] = grade
	}
	if in.Strand != nil {
		updates["strand"] = strings.TrimSpace(*in.Strand)
	}
	if in.IsPublic != nil {
		updates["is_public"] = *in.IsPublic
	}
	if in.Tags != nil {
		tags, err := normalizeTags(in.Tags)
		if err != nil {
			return nil, err
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("encode tags: %w", err))
		}
		updates["tags"] = datatypes.JSON(tagsJSON)
	}
	if len(updates) == 0 {
		return res, nil
	}

	demoted := res.Status == domain.StatusApproved
	if demoted {
		updates["status"] = domain.StatusPending
		updates["moderated_by"] = nil
		updates["moderated_at"] = nil
		updates["moderation_notes"] = ""
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resourceRepo.UpdateFields(ctx, tx, id, updates); err != nil {
			return err
		}
		if demoted {
			// The resource left the approved catalog, so the cached school
			// counter shrinks with it.
			return s.schoolRepo.AdjustCounters(ctx, tx, res.SchoolID, -1, 0)
		}
		return nil
	})
	if txErr != nil {
		return nil, apierr.Internal(fmt.Errorf("update resource: %w", txErr))
	}

	if demoted {
		s.log.Info("Approved resource edited, demoted to pending for re-review", "resource_id", id)
		if s.stats != nil {
			s.stats.Invalidate(ctx, res.SchoolID)
		}
	}

	updated, err := s.resourceRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("reload resource: %w", err))
	}
	return updated, nil
}

// Delete releases the stored bytes and removes the metadata row. A storage
// failure is logged and the metadata delete proceeds anyway: a human can
// reconcile an orphaned blob far more easily than a user can live with a
// stuck delete.
func (s *resourceService) Delete(ctx context.Context, rd *requestdata.RequestData, id uuid.UUID) error {
	res, err := s.resourceRepo.GetByID(ctx, nil, id)
	if err != nil {
		return apierr.Internal(fmt.Errorf("load resource: %w", err))
	}
	if res == nil || !canSee(rd, res) {
		return apierr.NotFound("resource %s not found", id)
	}
	if !rd.IsAdmin() && rd.UserID != res.UploaderID {
		return apierr.Forbidden("only the uploader or an admin can delete a resource")
	}

	if err := s.driver.Delete(ctx, res.StorageKey); err != nil {
		if errors.Is(err, storage.ErrNotFound) || storage.IsFailure(err) {
			s.log.Error("Storage delete failed, proceeding with metadata delete",
				"resource_id", id,
				"storage_key", res.StorageKey,
				"error", err,
			)
		} else {
			return apierr.StorageFailure(err)
		}
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resourceRepo.FullDeleteByID(ctx, tx, id); err != nil {
			return err
		}
		if res.Status == domain.StatusApproved {
			return s.schoolRepo.AdjustCounters(ctx, tx, res.SchoolID, -1, 0)
		}
		return nil
	})
	if txErr != nil {
		return apierr.Internal(fmt.Errorf("delete resource: %w", txErr))
	}

	s.log.Info("Resource deleted", "resource_id", id, "deleted_by", rd.UserID)
	if s.stats != nil {
		s.stats.Invalidate(ctx, res.SchoolID)
	}
	return nil
}
