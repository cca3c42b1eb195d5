package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/requestdata"
	"github.com/edushare/edushare-backend/internal/services"
	"github.com/edushare/edushare-backend/internal/storage"
)

// maxUploadBytes is the upload size ceiling (50 MiB). The request body cap
// sits uploadBodySlack above it so form fields and multipart framing cannot
// push a file at the ceiling over the limit.
const (
	maxUploadBytes  = 50 << 20
	uploadBodySlack = 1 << 20
)

var allowedMimeTypes = map[string]bool{
	"application/pdf":               true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/zip":      true,
	"application/epub+zip": true,
	"text/plain":           true,
	"text/csv":             true,
	"image/jpeg":           true,
	"image/png":            true,
	"image/gif":            true,
	"image/webp":           true,
	"audio/mpeg":           true,
	"audio/wav":            true,
	"video/mp4":            true,
	"video/webm":           true,
	"video/quicktime":      true,
}

type ResourceHandler struct {
	log             *logger.Logger
	resourceService services.ResourceService
	downloadService services.DownloadService
	driver          storage.Driver
}

func NewResourceHandler(
	log *logger.Logger,
	resourceService services.ResourceService,
	downloadService services.DownloadService,
	driver storage.Driver,
) *ResourceHandler {
	return &ResourceHandler{
		log:             log.With("handler", "ResourceHandler"),
		resourceService: resourceService,
		downloadService: downloadService,
		driver:          driver,
	}
}

// POST /api/resources
// Multipart: one "file" part plus metadata fields. The created resource
// starts in pending state and is invisible to the catalog until approved.
func (h *ResourceHandler) Upload(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+uploadBodySlack)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", nil)
			return
		}
		RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	if fh.Size > maxUploadBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", nil)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		// Sniff when the client didn't say or said nothing useful.
		sniffFile, err := fh.Open()
		if err == nil {
			buf := make([]byte, 512)
			n, _ := sniffFile.Read(buf)
			_ = sniffFile.Close()
			mimeType = http.DetectContentType(buf[:n])
		}
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !allowedMimeTypes[mimeType] {
		RespondError(c, http.StatusUnsupportedMediaType, "unsupported_file_type", nil)
		return
	}

	file, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "could_not_read_file", err)
		return
	}
	defer file.Close()

	var tags []string
	if raw := strings.TrimSpace(c.PostForm("tags")); raw != "" {
		tags = strings.Split(raw, ",")
	}
	isPublic := true
	if v := c.PostForm("isPublic"); v != "" {
		isPublic, _ = strconv.ParseBool(v)
	}

	res, err := h.resourceService.Create(c.Request.Context(), rd, services.CreateResourceInput{
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		Subject:      c.PostForm("subject"),
		Grade:        c.PostForm("grade"),
		Strand:       c.PostForm("strand"),
		Tags:         tags,
		IsPublic:     isPublic,
		OriginalName: fh.Filename,
		MimeType:     mimeType,
		SizeBytes:    fh.Size,
		File:         file,
	})
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondCreated(c, res)
}

// GET /api/resources
func (h *ResourceHandler) List(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())

	filter := repos.ResourceFilter{
		Query:   c.Query("q"),
		Subject: c.Query("subject"),
		Grade:   c.Query("grade"),
		Strand:  c.Query("strand"),
		Tag:     c.Query("tag"),
	}
	if v := c.Query("school"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_school_id", err)
			return
		}
		filter.SchoolID = id
	}
	if v := c.Query("uploader"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_uploader_id", err)
			return
		}
		filter.UploaderID = id
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	rows, total, err := h.resourceService.List(c.Request.Context(), rd, filter)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondList(c, rows, total, filter.Page, filter.Limit)
}

// GET /api/resources/:id
func (h *ResourceHandler) Get(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	res, err := h.resourceService.Get(c.Request.Context(), rd, id)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, res)
}

// GET /api/resources/:id/related
func (h *ResourceHandler) Related(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	rows, err := h.resourceService.Related(c.Request.Context(), rd, id)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, rows)
}

type updateResourceRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Subject     *string  `json:"subject"`
	Grade       *string  `json:"grade"`
	Strand      *string  `json:"strand"`
	Tags        []string `json:"tags"`
	IsPublic    *bool    `json:"is_public"`
}

// PUT /api/resources/:id
func (h *ResourceHandler) Update(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	var in updateResourceRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.resourceService.Update(c.Request.Context(), rd, id, services.UpdateResourceInput{
		Title:       in.Title,
		Description: in.Description,
		Subject:     in.Subject,
		Grade:       in.Grade,
		Strand:      in.Strand,
		Tags:        in.Tags,
		IsPublic:    in.IsPublic,
	})
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, res)
}

// DELETE /api/resources/:id
func (h *ResourceHandler) Delete(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	if err := h.resourceService.Delete(c.Request.Context(), rd, id); err != nil {
		RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/resources/:id/download
// Returns {url, expires_at}; the API server never proxies the bytes itself.
func (h *ResourceHandler) Download(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	offline, _ := strconv.ParseBool(c.Query("offline"))
	grant, err := h.downloadService.Download(c.Request.Context(), rd, id, services.ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Offline:   offline,
	})
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, grant)
}

// GET /files/*key
// Byte handoff behind auth, local driver only. S3 URLs point at the bucket.
// The key is re-resolved to its resource so non-approved bytes stay gated the
// same way the download endpoint gates them.
func (h *ResourceHandler) ServeFile(c *gin.Context) {
	opener, ok := h.driver.(storage.Opener)
	if !ok {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	rd := requestdata.Get(c.Request.Context())
	key := strings.TrimPrefix(c.Param("key"), "/")
	if _, err := h.resourceService.AuthorizeFileAccess(c.Request.Context(), rd, key); err != nil {
		RespondErr(c, err)
		return
	}
	f, err := opener.Open(key)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	defer f.Close()

	if name := c.Query("filename"); name != "" {
		c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	}
	http.ServeContent(c.Writer, c.Request, "", time.Time{}, f)
}
