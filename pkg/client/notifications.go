package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// NotificationService handles notification management API calls
type NotificationService struct {
	client *Client
}

// UpsertRecipientRequest represents a request to save a recipient rule
type UpsertRecipientRequest struct {
	Email             string   `json:"email"`
	Name              string   `json:"name,omitempty"`
	SiteID            string   `json:"site_id,omitempty"` // empty subscribes to all sites
	Frequency         string   `json:"frequency,omitempty"`
	NotificationTypes []string `json:"notification_types,omitempty"`
}

// UpsertRecipient creates or updates a recipient rule
func (s *NotificationService) UpsertRecipient(ctx context.Context, req UpsertRecipientRequest) (*RecipientRule, error) {
	var rule RecipientRule
	if err := s.client.doRequest(ctx, "POST", "/api/v1/notifications/recipients", req, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRecipients lists all recipient rules
func (s *NotificationService) ListRecipients(ctx context.Context) ([]RecipientRule, error) {
	var result struct {
		Recipients []RecipientRule `json:"recipients"`
	}
	if err := s.client.doRequest(ctx, "GET", "/api/v1/notifications/recipients", nil, &result); err != nil {
		return nil, err
	}
	return result.Recipients, nil
}

// RemoveRecipient deactivates a recipient rule
func (s *NotificationService) RemoveRecipient(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/v1/notifications/recipients/%d", id)
	return s.client.doRequest(ctx, "DELETE", path, nil, nil)
}

// ListMessages lists queued notification messages, optionally filtered
// by status
func (s *NotificationService) ListMessages(ctx context.Context, status string, opts *ListOptions) ([]Message, *PageInfo, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
	}

	path := "/api/v1/notifications/messages"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page struct {
		Data []Message `json:"data"`
		PageInfo
	}
	if err := s.client.doRequest(ctx, "GET", path, nil, &page); err != nil {
		return nil, nil, err
	}
	return page.Data, &page.PageInfo, nil
}

// CancelMessage withdraws a pending notification from the queue
func (s *NotificationService) CancelMessage(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/v1/notifications/messages/%s/cancel", url.PathEscape(id))
	return s.client.doRequest(ctx, "POST", path, nil, nil)
}

// QueueDepth reports the notification queue depth per status
func (s *NotificationService) QueueDepth(ctx context.Context) (map[string]int64, error) {
	var counts map[string]int64
	if err := s.client.doRequest(ctx, "GET", "/api/v1/notifications/queue", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// ProcessQueue triggers an immediate queue processing pass. Returns
// the sent and failed counts.
func (s *NotificationService) ProcessQueue(ctx context.Context) (sent, failed int, err error) {
	var result struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	if err := s.client.doRequest(ctx, "POST", "/api/v1/notifications/process", nil, &result); err != nil {
		return 0, 0, err
	}
	return result.Sent, result.Failed, nil
}
