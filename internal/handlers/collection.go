package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/pipeline"
	"github.com/lessonforge/lessonforge-backend/internal/services"
)

type CollectionHandler struct {
	collectionService services.CollectionService
	pipe              *pipeline.Pipeline
}

func NewCollectionHandler(collectionService services.CollectionService, pipe *pipeline.Pipeline) *CollectionHandler {
	return &CollectionHandler{collectionService: collectionService, pipe: pipe}
}

type createCollectionRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (ch *CollectionHandler) Create(c *gin.Context) {
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	collection, err := ch.collectionService.Create(c.Request.Context(), middleware.OrgID(c), req.Title, req.Description)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"collection": collection})
}

func (ch *CollectionHandler) List(c *gin.Context) {
	collections, err := ch.collectionService.List(c.Request.Context(), middleware.OrgID(c))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"collections": collections})
}

func (ch *CollectionHandler) Get(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	collection, err := ch.collectionService.Get(c.Request.Context(), middleware.OrgID(c), collectionID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	members, err := ch.collectionService.Members(c.Request.Context(), middleware.OrgID(c), collectionID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	synthesis, err := ch.collectionService.LatestSynthesis(c.Request.Context(), middleware.OrgID(c), collectionID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"collection": collection, "members": members, "synthesis": synthesis})
}

type addSourcesRequest struct {
	Sources []struct {
		Type     string `json:"type" binding:"required"`
		Locator  string `json:"locator" binding:"required"`
		Title    string `json:"title" binding:"required"`
		MimeType string `json:"mime_type"`
	} `json:"sources" binding:"required,min=1"`
}

// AddSources links new sources into the collection and analyzes them. Each
// source reports its own outcome; a failed analysis does not abort the batch.
func (ch *CollectionHandler) AddSources(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req addSourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	descs := make([]pipeline.SourceDescriptor, 0, len(req.Sources))
	for _, s := range req.Sources {
		descs = append(descs, pipeline.SourceDescriptor{
			Type:     s.Type,
			Locator:  s.Locator,
			Title:    s.Title,
			MimeType: s.MimeType,
		})
	}
	results, err := ch.pipe.AddSources(c.Request.Context(), middleware.OrgID(c), collectionID, descs)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}

// Analyze synthesizes the collection's member analyses.
func (ch *CollectionHandler) Analyze(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	analysis, err := ch.pipe.Analyze(c.Request.Context(), middleware.OrgID(c), collectionID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"analysis": analysis})
}

// Generate builds a course from the collection, re-synthesizing first if the
// stored synthesis is stale.
func (ch *CollectionHandler) Generate(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	course, err := ch.pipe.Generate(c.Request.Context(), middleware.OrgID(c), collectionID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"course": course})
}

// GetSynthesis returns the collection's latest cross-source synthesis.
func (ch *CollectionHandler) GetSynthesis(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	analysis, err := ch.collectionService.LatestSynthesis(c.Request.Context(), middleware.OrgID(c), collectionID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"analysis": analysis})
}
