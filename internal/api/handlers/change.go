package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/utils"
	"github.com/simplyinspect/permwatch/internal/services"
)

type ChangeHandler struct {
	service *services.ChangeService
	logger  *logger.Logger
}

func NewChangeHandler(service *services.ChangeService, log *logger.Logger) *ChangeHandler {
	return &ChangeHandler{
		service: service,
		logger:  log,
	}
}

// ListChanges lists detected permission changes
// @Summary List changes
// @Description List detected permission changes, newest first, with optional filters
// @Tags Changes
// @Produce json
// @Param site_id query string false "Site ID"
// @Param baseline_id query int false "Baseline ID"
// @Param types query string false "Comma-separated change types"
// @Param reviewed query bool false "Reviewed flag"
// @Param since query string false "RFC3339 lower bound on detection time"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} utils.PaginatedResponse "List of changes"
// @Failure 400 {object} utils.ErrorResponse "Invalid filter"
// @Router /changes [get]
func (h *ChangeHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	filter, err := parseChangeFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	params := utils.ParsePaginationParams(r)
	filter.Limit = params.PageSize
	filter.Offset = params.Offset

	records, total, err := h.service.ListChanges(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(records, params.Page, params.PageSize, total))
}

// GetChange retrieves a change record by ID
// @Summary Get change
// @Tags Changes
// @Produce json
// @Param id path int true "Change ID"
// @Success 200 {object} change.Record "Change details"
// @Failure 404 {object} utils.ErrorResponse "Change not found"
// @Router /changes/{id} [get]
func (h *ChangeHandler) GetChange(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rec, err := h.service.GetChange(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, rec)
}

// MarkReviewed marks change records as reviewed
// @Summary Review changes
// @Description Mark the given change records as reviewed so they stop appearing in digests and can be re-detected
// @Tags Changes
// @Accept json
// @Produce json
// @Param request body object{ids=[]int,reviewed_by=string,notes=string} true "Change IDs, reviewer, and optional notes"
// @Success 200 {object} map[string]interface{} "Review result"
// @Failure 400 {object} utils.ErrorResponse "Invalid request"
// @Router /changes/review [post]
func (h *ChangeHandler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs        []int64 `json:"ids"`
		ReviewedBy string  `json:"reviewed_by"`
		Notes      string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request payload"))
		return
	}

	updated, err := h.service.MarkReviewed(r.Context(), req.IDs, req.ReviewedBy, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"reviewed": updated,
	})
}

func parseChangeFilter(r *http.Request) (change.Filter, error) {
	q := r.URL.Query()

	filter := change.Filter{
		SiteID: q.Get("site_id"),
	}

	if raw := q.Get("baseline_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.BadRequest("Invalid baseline_id")
		}
		filter.BaselineID = id
	}

	if raw := q.Get("types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, change.Type(strings.TrimSpace(part)))
		}
	}

	if raw := q.Get("reviewed"); raw != "" {
		reviewed, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.BadRequest("Invalid reviewed flag")
		}
		filter.Reviewed = &reviewed
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.BadRequest("Invalid since timestamp, expected RFC3339")
		}
		filter.Since = &since
	}

	return filter, nil
}
