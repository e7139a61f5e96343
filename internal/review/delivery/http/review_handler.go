package http

import (
	"errors"
	"net/http"

	"geostory-pipeline/internal/review/dto"
	"geostory-pipeline/internal/review/service"
	"geostory-pipeline/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReviewHandler handles HTTP requests from the review front-end.
type ReviewHandler struct {
	reviewService service.ReviewService
	logger        *logger.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviewService service.ReviewService, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService, logger: log}
}

// RegisterRoutes registers the review routes to the Echo group.
func (h *ReviewHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/stories/pending-score", h.ListPendingStories)
	g.POST("/stories/:fingerprint/score", h.SubmitScore)
	g.GET("/jobs/dead-letter", h.ListDeadLetters)
}

// ListPendingStories godoc
// @Summary List stories awaiting a human score
// @Description Returns stories parked for review with their resolved entities and locations
// @Tags stories
// @Produce  json
// @Success 200 {array} dto.PendingStoryResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /stories/pending-score [get]
func (h *ReviewHandler) ListPendingStories(c echo.Context) error {
	stories, err := h.reviewService.ListPendingStories(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list pending stories", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to list pending stories"})
	}
	return c.JSON(http.StatusOK, stories)
}

// SubmitScore godoc
// @Summary Submit a human relevance score
// @Description Records the judgment and resumes the parked job at the persistence stage
// @Tags stories
// @Accept  json
// @Produce  json
// @Param   fingerprint  path    string                 true  "Story fingerprint"
// @Param   score        body    dto.SubmitScoreRequest true  "Score in [0,1]"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /stories/{fingerprint}/score [post]
func (h *ReviewHandler) SubmitScore(c echo.Context) error {
	var req dto.SubmitScoreRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request payload"})
	}

	fingerprint := c.Param("fingerprint")
	err := h.reviewService.SubmitScore(c.Request().Context(), fingerprint, req.Score)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrScoreOutOfRange):
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "score must be in [0,1]"})
		case errors.Is(err, service.ErrNotFound):
			return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "story not found"})
		case errors.Is(err, service.ErrNotPendingScore):
			return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "story is not awaiting a score"})
		default:
			h.logger.Error("Failed to submit score", logger.ErrorField(err),
				logger.StringField("fingerprint", fingerprint))
			return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to submit score"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// ListDeadLetters godoc
// @Summary List dead-lettered jobs
// @Description Returns jobs that exhausted their retry budget, with their last error
// @Tags jobs
// @Produce  json
// @Success 200 {array} dto.DeadLetterResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /jobs/dead-letter [get]
func (h *ReviewHandler) ListDeadLetters(c echo.Context) error {
	jobs, err := h.reviewService.ListDeadLetters(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list dead letters", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to list dead letters"})
	}
	return c.JSON(http.StatusOK, jobs)
}
