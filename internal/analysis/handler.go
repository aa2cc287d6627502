package analysis

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lexcase-backend/internal/cases"
	"lexcase-backend/internal/documents"
	"lexcase-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analysis service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cases/:id/analyses", h.requestAnalysis)
	rg.GET("/cases/:id/analyses/latest", h.latestAnalysis)
	rg.GET("/analyses/:id", h.getVersion)
	rg.GET("/jobs/:id", h.getJob)
}

type requestAnalysisBody struct {
	DocumentIDs []string `json:"documentIds"`
	Tier        string   `json:"tier"`
}

func (h *Handler) requestAnalysis(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "case id is required", nil)
		return
	}
	c.Set("caseId", caseID)

	var body requestAnalysisBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(body.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", []map[string]string{
			{"field": "documentIds", "issue": "required"},
		})
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	res, err := h.Svc.RequestAnalysis(ctx, caseID, body.DocumentIDs, body.Tier)
	if err != nil {
		switch {
		case errors.Is(err, cases.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		case errors.Is(err, ErrAnalysisInProgress):
			respond.Error(c, http.StatusConflict, "analysis_in_progress", "An analysis for these inputs is already running. Poll for its result.", nil)
		case errors.Is(err, ErrCreditsExhausted):
			respond.Error(c, http.StatusPaymentRequired, "credits_exhausted", "Analysis credits exhausted for this workspace.", nil)
		case errors.Is(err, ErrNotFound), errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	c.Set("versionId", res.VersionID)
	c.Set("jobId", res.JobID)

	status := http.StatusAccepted
	if res.CacheHit {
		status = http.StatusOK
	}
	respond.JSON(c, status, res)
}

func (h *Handler) getVersion(c *gin.Context) {
	versionID := c.Param("id")
	if versionID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return
	}

	version, err := h.Svc.GetVersion(c.Request.Context(), versionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	c.Set("versionId", version.ID)
	c.Set("caseId", version.CaseID)
	respond.JSON(c, http.StatusOK, versionResponse(version))
}

func (h *Handler) latestAnalysis(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "case id is required", nil)
		return
	}
	c.Set("caseId", caseID)

	version, err := h.Svc.GetLatestVersion(c.Request.Context(), caseID, c.Query("tier"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "no analysis for case", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	c.Set("versionId", version.ID)
	respond.JSON(c, http.StatusOK, versionResponse(version))
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	job, err := h.Svc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch job", nil)
		}
		return
	}

	c.Set("jobId", job.ID)
	c.Set("caseId", job.CaseID)
	resp := gin.H{
		"id":        job.ID,
		"caseId":    job.CaseID,
		"versionId": job.VersionID,
		"status":    job.Status,
		"progress":  job.Progress,
	}
	if job.Status == JobStatusFailed && job.ErrorMessage != nil {
		resp["error"] = *job.ErrorMessage
	}
	respond.JSON(c, http.StatusOK, resp)
}

func versionResponse(v Version) gin.H {
	resp := gin.H{
		"id":      v.ID,
		"caseId":  v.CaseID,
		"version": v.Version,
		"tier":    v.Tier,
		"status":  v.Status,
	}
	if v.Status == VersionStatusCompleted {
		resp["result"] = v.Result
		resp["model"] = v.Model
		resp["confidence"] = v.Confidence
		resp["processingMs"] = v.ProcessingMs
	}
	if v.Status == VersionStatusFailed {
		resp["errorCode"] = v.ErrorCode
		resp["errorMessage"] = v.ErrorMessage
	}
	return resp
}
