package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nimendoza/B2023-R3X-07/internal/dto"
	"github.com/nimendoza/B2023-R3X-07/internal/models"
	appErrors "github.com/nimendoza/B2023-R3X-07/pkg/errors"
	"github.com/nimendoza/B2023-R3X-07/pkg/response"
)

// ContextRunIDKey carries the run being served so request logs can tag it.
const ContextRunIDKey = "run_id"

const maxListLimit = 100

type allocationRunner interface {
	Run(ctx context.Context, req dto.RunRequest) (*dto.RunResponse, error)
	Enqueue(ctx context.Context, req dto.RunRequest) (*dto.RunResponse, error)
	Get(ctx context.Context, runID string) (*dto.RunResponse, error)
	List(ctx context.Context, limit int) ([]models.AllocationRun, error)
	Save(ctx context.Context, req dto.SaveRunRequest) (*dto.RunResponse, error)
	Export(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error)
	OpenExport(token string) (*os.File, string, error)
}

// AllocationHandler exposes allocation runs over HTTP.
type AllocationHandler struct {
	service allocationRunner
}

// NewAllocationHandler constructs the handler.
func NewAllocationHandler(svc allocationRunner) *AllocationHandler {
	return &AllocationHandler{service: svc}
}

// RegisterRoutes mounts the run endpoints. guard runs before every endpoint
// that starts work or writes state.
func (h *AllocationHandler) RegisterRoutes(r gin.IRouter, guard ...gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, guard...), handler)
	}
	allocations := r.Group("/allocations")
	allocations.POST("", write(h.Run)...)
	allocations.POST("/async", write(h.RunAsync)...)
	allocations.GET("", h.List)
	allocations.GET("/:id", h.Get)
	allocations.POST("/:id/save", write(h.Save)...)
	allocations.GET("/:id/export", write(h.Export)...)
	r.GET("/exports/:token", h.Download)
}

// Run executes an allocation synchronously and returns the proposal.
func (h *AllocationHandler) Run(c *gin.Context) {
	var req dto.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	resp, err := h.service.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(ContextRunIDKey, resp.RunID)
	response.JSON(c, http.StatusOK, resp)
}

// RunAsync queues an allocation and returns its run id.
func (h *AllocationHandler) RunAsync(c *gin.Context) {
	var req dto.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	resp, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(ContextRunIDKey, resp.RunID)
	c.Header("Location", fmt.Sprintf("%s/%s", strings.TrimSuffix(c.Request.URL.Path, "/async"), resp.RunID))
	response.Accepted(c, resp)
}

// List returns recently saved runs.
func (h *AllocationHandler) List(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("limit must be between 1 and %d", maxListLimit)))
			return
		}
		limit = parsed
	}
	runs, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, map[string]interface{}{"limit": limit, "count": len(runs)})
}

// Get returns a proposal, a queued run or a saved run.
func (h *AllocationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	c.Set(ContextRunIDKey, id)
	resp, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Save persists one result of a completed proposal. An empty body saves the
// first result.
func (h *AllocationHandler) Save(c *gin.Context) {
	var req dto.SaveRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
			return
		}
	}
	req.RunID = c.Param("id")
	c.Set(ContextRunIDKey, req.RunID)
	resp, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Export renders a result and returns a signed download link.
func (h *AllocationHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	req.RunID = c.Param("id")
	c.Set(ContextRunIDKey, req.RunID)
	resp, err := h.service.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Download streams a stored export identified by a signed token.
func (h *AllocationHandler) Download(c *gin.Context) {
	file, name, err := h.service.OpenExport(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType(name), file, nil)
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
