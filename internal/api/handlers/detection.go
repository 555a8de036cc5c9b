package handlers

import (
	"net/http"
	"strconv"

	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/utils"
	"github.com/simplyinspect/permwatch/internal/services"
)

type DetectionHandler struct {
	service *services.DetectionService
	logger  *logger.Logger
}

func NewDetectionHandler(service *services.DetectionService, log *logger.Logger) *DetectionHandler {
	return &DetectionHandler{
		service: service,
		logger:  log,
	}
}

// RunSite runs change detection for a single site
// @Summary Detect changes for a site
// @Description Compare the site's active baseline against its current permissions, persist new changes, and queue notifications
// @Tags Detection
// @Produce json
// @Param site_id query string true "Site ID"
// @Success 200 {object} services.SiteRunResult "Detection result"
// @Failure 400 {object} utils.ErrorResponse "Missing site_id"
// @Router /detection/run [post]
func (h *DetectionHandler) RunSite(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		utils.WriteError(w, errors.BadRequest("site_id is required"))
		return
	}

	result := h.service.DetectSite(r.Context(), siteID)
	utils.WriteSuccess(w, http.StatusOK, result)
}

// RunAll runs change detection for every site with an active baseline
// @Summary Detect changes for all sites
// @Tags Detection
// @Produce json
// @Success 200 {object} services.RunReport "Detection report"
// @Router /detection/run-all [post]
func (h *DetectionHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.DetectAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, report)
}

// Compare compares a baseline against current permissions without
// persisting change records
// @Summary Compare baseline
// @Description Dry-run comparison of a baseline against the site's current permissions
// @Tags Detection
// @Produce json
// @Param id path int true "Baseline ID"
// @Param use_cache query bool false "Serve a recent cached comparison when available"
// @Success 200 {object} change.Summary "Comparison summary"
// @Failure 404 {object} utils.ErrorResponse "Baseline not found"
// @Router /baselines/{id}/compare [get]
func (h *DetectionHandler) Compare(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	useCache := true
	if raw := r.URL.Query().Get("use_cache"); raw != "" {
		useCache, err = strconv.ParseBool(raw)
		if err != nil {
			utils.WriteError(w, errors.BadRequest("Invalid use_cache flag"))
			return
		}
	}

	summary, err := h.service.CompareBaseline(r.Context(), id, useCache)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, summary)
}
