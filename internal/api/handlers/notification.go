package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/utils"
	"github.com/simplyinspect/permwatch/internal/pkg/validator"
)

type NotificationHandler struct {
	service notification.Service
	logger  *logger.Logger
}

func NewNotificationHandler(service notification.Service, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  log,
	}
}

// UpsertRecipient creates or updates a recipient rule
// @Summary Save recipient rule
// @Description Create or update a notification recipient. An empty site_id subscribes the recipient to all sites.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body handlers.RecipientRequest true "Recipient rule"
// @Success 200 {object} notification.RecipientRule "Saved rule"
// @Failure 400 {object} utils.ErrorResponse "Invalid request"
// @Router /notifications/recipients [post]
// RecipientRequest is the payload for saving a recipient rule
type RecipientRequest struct {
	Email             string   `json:"email" validate:"required,email"`
	Name              string   `json:"name,omitempty"`
	SiteID            string   `json:"site_id,omitempty"`
	Frequency         string   `json:"frequency,omitempty" validate:"omitempty,oneof=immediate daily weekly"`
	NotificationTypes []string `json:"notification_types,omitempty" validate:"omitempty,dive,oneof=permission_change daily_summary weekly_summary"`
}

func (h *NotificationHandler) UpsertRecipient(w http.ResponseWriter, r *http.Request) {
	var req RecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request payload"))
		return
	}
	if violations := validator.Validate(req); len(violations) > 0 {
		utils.WriteError(w, errors.ValidationFailed("Invalid recipient rule", violations))
		return
	}

	rule := notification.RecipientRule{
		Email:             req.Email,
		Name:              req.Name,
		SiteID:            req.SiteID,
		Frequency:         notification.Frequency(req.Frequency),
		NotificationTypes: req.NotificationTypes,
	}
	if err := h.service.UpsertRule(r.Context(), &rule); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusOK, "Recipient rule saved", rule)
}

// ListRecipients lists all recipient rules
// @Summary List recipient rules
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]interface{} "Recipient rules"
// @Router /notifications/recipients [get]
func (h *NotificationHandler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"recipients": rules,
		"count":      len(rules),
	})
}

// RemoveRecipient deactivates a recipient rule
// @Summary Remove recipient rule
// @Tags Notifications
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} map[string]string "Rule removed"
// @Failure 404 {object} utils.ErrorResponse "Rule not found"
// @Router /notifications/recipients/{id} [delete]
func (h *NotificationHandler) RemoveRecipient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.service.RemoveRule(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Recipient rule removed",
	})
}

// ListMessages lists queued notification messages
// @Summary List notification messages
// @Tags Notifications
// @Produce json
// @Param status query string false "Status filter (pending, sending, sent, failed)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} utils.PaginatedResponse "Messages"
// @Router /notifications/messages [get]
func (h *NotificationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	status := notification.Status(r.URL.Query().Get("status"))
	params := utils.ParsePaginationParams(r)

	msgs, total, err := h.service.ListMessages(r.Context(), status, params.PageSize, params.Offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(msgs, params.Page, params.PageSize, total))
}

// QueueDepth reports the notification queue depth per status
// @Summary Queue depth
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]int64 "Counts per status"
// @Router /notifications/queue [get]
func (h *NotificationHandler) QueueDepth(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.QueueDepth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, counts)
}

// CancelMessage withdraws a pending notification from the queue
// @Summary Cancel notification
// @Description Withdraw a pending message before a delivery worker claims it
// @Tags Notifications
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} map[string]string "Message cancelled"
// @Failure 404 {object} utils.ErrorResponse "Message not found"
// @Failure 409 {object} utils.ErrorResponse "Message is not pending"
// @Router /notifications/messages/{id}/cancel [post]
func (h *NotificationHandler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.WriteError(w, errors.BadRequest("message id is required"))
		return
	}

	if err := h.service.CancelMessage(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Notification cancelled",
	})
}

// ProcessQueue triggers an immediate queue processing pass
// @Summary Process queue
// @Description Claim due messages and attempt delivery now instead of waiting for the scheduler
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]int "Delivery counts"
// @Router /notifications/process [post]
func (h *NotificationHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	sent, failed, err := h.service.ProcessQueue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]int{
		"sent":   sent,
		"failed": failed,
	})
}
