package cases

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lexcase-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the cases repository.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches case routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cases", h.createCase)
	rg.GET("/cases/:id", h.getCase)
	rg.POST("/cases/:id/movements", h.recordMovement)
}

type createCaseBody struct {
	WorkspaceID    string `json:"workspaceId"`
	Title          string `json:"title"`
	Court          string `json:"court"`
	DocketNumber   string `json:"docketNumber"`
	PartiesSummary string `json:"partiesSummary"`
	Subject        string `json:"subject"`
}

func (h *Handler) createCase(c *gin.Context) {
	var body createCaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if body.Title == "" || body.WorkspaceID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "workspaceId and title are required", nil)
		return
	}

	now := time.Now().UTC()
	kase := Case{
		ID:             uuid.NewString(),
		WorkspaceID:    body.WorkspaceID,
		Title:          body.Title,
		Court:          body.Court,
		DocketNumber:   body.DocketNumber,
		PartiesSummary: body.PartiesSummary,
		Subject:        body.Subject,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.Repo.Create(c.Request.Context(), kase); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create case", nil)
		return
	}

	c.Set("caseId", kase.ID)
	respond.JSON(c, http.StatusCreated, kase)
}

func (h *Handler) getCase(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "case id is required", nil)
		return
	}

	kase, err := h.Repo.GetByID(c.Request.Context(), caseID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch case", nil)
		}
		return
	}

	c.Set("caseId", kase.ID)
	respond.JSON(c, http.StatusOK, kase)
}

type recordMovementBody struct {
	MovedAt time.Time `json:"movedAt"`
}

func (h *Handler) recordMovement(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "case id is required", nil)
		return
	}
	c.Set("caseId", caseID)

	var body recordMovementBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	movedAt := body.MovedAt
	if movedAt.IsZero() {
		movedAt = time.Now().UTC()
	}

	if err := h.Repo.RecordMovement(c.Request.Context(), caseID, movedAt); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to record movement", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{"caseId": caseID, "movedAt": movedAt.UTC()})
}
