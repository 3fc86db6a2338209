package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/services"
)

type CourseHandler struct {
	courseService services.CourseService
}

func NewCourseHandler(courseService services.CourseService) *CourseHandler {
	return &CourseHandler{courseService: courseService}
}

func (ch *CourseHandler) List(c *gin.Context) {
	courses, err := ch.courseService.List(c.Request.Context(), middleware.OrgID(c))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"courses": courses})
}

// Get returns the full course tree: modules with their objectives, activities
// and source mappings.
func (ch *CourseHandler) Get(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	tree, err := ch.courseService.GetTree(c.Request.Context(), middleware.OrgID(c), courseID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, tree)
}
