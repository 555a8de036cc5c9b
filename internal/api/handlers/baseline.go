package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/utils"
	"github.com/simplyinspect/permwatch/internal/pkg/validator"
)

type BaselineHandler struct {
	service baseline.Service
	logger  *logger.Logger
}

func NewBaselineHandler(service baseline.Service, log *logger.Logger) *BaselineHandler {
	return &BaselineHandler{
		service: service,
		logger:  log,
	}
}

// CaptureBaseline captures a new permission baseline for a site
// @Summary Capture baseline
// @Description Collect the site's current permissions and store them as a baseline snapshot
// @Tags Baselines
// @Accept json
// @Produce json
// @Param request body baseline.CaptureRequest true "Capture details"
// @Success 201 {object} baseline.Baseline "Baseline captured"
// @Failure 400 {object} utils.ErrorResponse "Invalid request"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /baselines [post]
func (h *BaselineHandler) CaptureBaseline(w http.ResponseWriter, r *http.Request) {
	var req baseline.CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request payload"))
		return
	}
	if violations := validator.Validate(req); len(violations) > 0 {
		utils.WriteError(w, errors.ValidationFailed("Invalid capture request", violations))
		return
	}

	b, err := h.service.CaptureBaseline(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusCreated, "Baseline captured", b)
}

// GetBaseline retrieves a baseline by ID
// @Summary Get baseline
// @Description Get a baseline snapshot including its permission entries
// @Tags Baselines
// @Produce json
// @Param id path int true "Baseline ID"
// @Success 200 {object} baseline.Baseline "Baseline details"
// @Failure 404 {object} utils.ErrorResponse "Baseline not found"
// @Router /baselines/{id} [get]
func (h *BaselineHandler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	b, err := h.service.GetBaseline(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, b)
}

// GetActiveBaseline retrieves the active baseline for a site
// @Summary Get active baseline
// @Description Get the single active baseline for a site
// @Tags Baselines
// @Produce json
// @Param siteId query string true "Site ID"
// @Success 200 {object} baseline.Baseline "Active baseline"
// @Failure 404 {object} utils.ErrorResponse "No active baseline"
// @Router /baselines/active [get]
func (h *BaselineHandler) GetActiveBaseline(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		utils.WriteError(w, errors.BadRequest("site_id is required"))
		return
	}

	b, err := h.service.GetActiveBaseline(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, b)
}

// ListBaselines lists baselines for a site
// @Summary List baselines
// @Description Get baseline metadata for a site, newest first
// @Tags Baselines
// @Produce json
// @Param site_id query string true "Site ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} utils.PaginatedResponse "List of baselines"
// @Router /baselines [get]
func (h *BaselineHandler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		utils.WriteError(w, errors.BadRequest("site_id is required"))
		return
	}

	params := utils.ParsePaginationParams(r)

	baselines, total, err := h.service.ListBaselines(r.Context(), siteID, params.PageSize, params.Offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(baselines, params.Page, params.PageSize, total))
}

// ActivateBaseline makes a baseline the site's active baseline
// @Summary Activate baseline
// @Description Make the baseline the single active one for its site, replacing any previous active baseline
// @Tags Baselines
// @Produce json
// @Param id path int true "Baseline ID"
// @Param site_id query string true "Site ID"
// @Success 200 {object} map[string]string "Baseline activated"
// @Failure 404 {object} utils.ErrorResponse "Baseline not found"
// @Failure 409 {object} utils.ErrorResponse "Concurrent activation conflict"
// @Router /baselines/{id}/activate [post]
func (h *BaselineHandler) ActivateBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		utils.WriteError(w, errors.BadRequest("site_id is required"))
		return
	}

	if err := h.service.ActivateBaseline(r.Context(), siteID, id); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Baseline activated",
	})
}

// DeactivateBaseline clears the active flag on a baseline
// @Summary Deactivate baseline
// @Tags Baselines
// @Produce json
// @Param id path int true "Baseline ID"
// @Param site_id query string true "Site ID"
// @Success 200 {object} map[string]string "Baseline deactivated"
// @Router /baselines/{id}/deactivate [post]
func (h *BaselineHandler) DeactivateBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		utils.WriteError(w, errors.BadRequest("site_id is required"))
		return
	}

	if err := h.service.DeactivateBaseline(r.Context(), siteID, id); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Baseline deactivated",
	})
}

// DeleteBaseline deletes a baseline
// @Summary Delete baseline
// @Tags Baselines
// @Produce json
// @Param id path int true "Baseline ID"
// @Success 200 {object} map[string]string "Baseline deleted"
// @Failure 404 {object} utils.ErrorResponse "Baseline not found"
// @Router /baselines/{id} [delete]
func (h *BaselineHandler) DeleteBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.service.DeleteBaseline(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Baseline deleted",
	})
}

// GetStatistics computes aggregate statistics for a baseline
// @Summary Baseline statistics
// @Description Aggregate counts over the baseline's permission entries
// @Tags Baselines
// @Produce json
// @Param id path int true "Baseline ID"
// @Success 200 {object} permission.Statistics "Statistics"
// @Router /baselines/{id}/statistics [get]
func (h *BaselineHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	stats, err := h.service.BaselineStatistics(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, stats)
}
