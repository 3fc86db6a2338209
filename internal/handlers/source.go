package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/pipeline"
	"github.com/lessonforge/lessonforge-backend/internal/services"
)

type SourceHandler struct {
	sourceService services.SourceService
	bucket        services.BucketService
	pipe          *pipeline.Pipeline
}

func NewSourceHandler(sourceService services.SourceService, bucket services.BucketService, pipe *pipeline.Pipeline) *SourceHandler {
	return &SourceHandler{sourceService: sourceService, bucket: bucket, pipe: pipe}
}

// Upload stores a file and returns the locator to pass to ingest. The "gcs:"
// prefix marks the locator as an uploaded object rather than a remote URL.
func (sh *SourceHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("missing file: %w", err))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	defer file.Close()

	key := fmt.Sprintf("uploads/%s/%s%s", middleware.OrgID(c), uuid.New(), filepath.Ext(fileHeader.Filename))
	if err := sh.bucket.UploadFile(c.Request.Context(), key, file); err != nil {
		RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"locator":   "gcs:" + key,
		"mime_type": fileHeader.Header.Get("Content-Type"),
		"filename":  fileHeader.Filename,
	})
}

type ingestRequest struct {
	Type     string `json:"type" binding:"required"`
	Locator  string `json:"locator" binding:"required"`
	Title    string `json:"title" binding:"required"`
	MimeType string `json:"mime_type"`
}

// Ingest runs the full single-source pipeline and returns the source with its
// generated course. Progress is broadcast over SSE while the request runs.
func (sh *SourceHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	source, course, err := sh.pipe.Ingest(c.Request.Context(), middleware.OrgID(c), pipeline.SourceDescriptor{
		Type:     req.Type,
		Locator:  req.Locator,
		Title:    req.Title,
		MimeType: req.MimeType,
	})
	if err != nil {
		if source == nil {
			RespondError(c, http.StatusBadRequest, "bad_request", err)
			return
		}
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"source": source, "course": course})
}

// Process retries a pending or failed source.
func (sh *SourceHandler) Process(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	course, err := sh.pipe.Process(c.Request.Context(), middleware.OrgID(c), sourceID, c.Query("mime_type"))
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"course": course})
}

func (sh *SourceHandler) List(c *gin.Context) {
	sources, err := sh.sourceService.List(c.Request.Context(), middleware.OrgID(c))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"sources": sources})
}

func (sh *SourceHandler) Get(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	source, err := sh.sourceService.Get(c.Request.Context(), middleware.OrgID(c), sourceID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	// Latest analysis rides along when one exists.
	analysis, err := sh.sourceService.LatestAnalysis(c.Request.Context(), middleware.OrgID(c), sourceID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"source": source, "analysis": analysis})
}

// GetAnalysis returns the source's latest analysis row.
func (sh *SourceHandler) GetAnalysis(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	analysis, err := sh.sourceService.LatestAnalysis(c.Request.Context(), middleware.OrgID(c), sourceID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"analysis": analysis})
}
