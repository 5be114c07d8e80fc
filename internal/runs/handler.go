package runs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gfwpro-workflow/internal/shared/server/respond"
)

// Handler exposes the run ledger over HTTP.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches run routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/runs", h.listRuns)
	rg.GET("/runs/:id", h.getRun)
	rg.GET("/lists/:listId/analysis/:analysisId/run", h.latestForList)
}

func (h *Handler) getRun(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "run id is required", nil)
		return
	}
	c.Set("runId", runID)
	run, err := h.Repo.GetByID(c.Request.Context(), runID)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	respond.OK(c, run)
}

func (h *Handler) latestForList(c *gin.Context) {
	c.Set("listId", c.Param("listId"))
	c.Set("analysisId", c.Param("analysisId"))
	run, err := h.Repo.GetLatestByListID(c.Request.Context(), c.Param("listId"), c.Param("analysisId"))
	if err != nil {
		h.lookupError(c, err)
		return
	}
	respond.OK(c, run)
}

func (h *Handler) listRuns(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	out, err := h.Repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to list runs", nil)
		return
	}
	respond.OK(c, gin.H{"runs": out, "limit": limit, "offset": offset})
}

func (h *Handler) lookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "run not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to fetch run", nil)
}
