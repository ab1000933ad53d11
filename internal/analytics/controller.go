package analytics

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ontology/internal/pipeline"
	"ontology/internal/shared/middleware"
	"ontology/internal/shared/utils/response"
)

// Controller defines the analytics controller interface
type Controller interface {
	RunAnalytics(c *gin.Context)
	GetLatestAnalytics(c *gin.Context)
	GetRun(c *gin.Context)
}

type controller struct {
	service Service
}

// NewController creates a new analytics controller instance
func NewController(service Service) Controller {
	return &controller{service: service}
}

// RunAnalytics runs the full pipeline for the organization and answers with
// the summary. The run is detached from the request so a dropped client does
// not abandon it halfway.
func (ctrl *controller) RunAnalytics(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "organization id is required", nil)
		return
	}

	res, err := ctrl.service.RunAnalytics(context.WithoutCancel(c.Request.Context()), orgID)
	if errors.Is(err, ErrRunInProgress) {
		response.RespondError(c, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		_ = c.Error(err)
		response.RespondError(c, http.StatusInternalServerError, "analytics run failed", err)
		return
	}
	response.RespondSuccess(c, http.StatusCreated, "Analytics run completed", res)
}

func (ctrl *controller) GetLatestAnalytics(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "organization id is required", nil)
		return
	}

	latest, err := ctrl.service.GetLatest(c.Request.Context(), orgID)
	if err != nil {
		ctrl.respondLookupError(c, err)
		return
	}
	response.RespondSuccess(c, http.StatusOK, "Latest analytics retrieved successfully", latest)
}

func (ctrl *controller) GetRun(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "organization id is required", nil)
		return
	}
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid run id", err)
		return
	}

	run, err := ctrl.service.GetRun(c.Request.Context(), orgID, runID)
	if err != nil {
		ctrl.respondLookupError(c, err)
		return
	}
	response.RespondSuccess(c, http.StatusOK, "Analytics run retrieved successfully", run)
}

func (ctrl *controller) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoRuns), errors.Is(err, pipeline.ErrRunNotFound):
		response.RespondError(c, http.StatusNotFound, err.Error(), nil)
	default:
		_ = c.Error(err)
		response.RespondError(c, http.StatusInternalServerError, "failed to load analytics", err)
	}
}
