package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// BaselineService handles baseline-related API calls
type BaselineService struct {
	client *Client
}

// CaptureBaselineRequest represents a request to capture a baseline
type CaptureBaselineRequest struct {
	SiteID         string `json:"site_id"`
	SiteURL        string `json:"site_url,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedByEmail string `json:"created_by_email,omitempty"`
	Activate       bool   `json:"activate"`
}

// Capture collects the site's current permissions and stores them as a
// new baseline snapshot
func (s *BaselineService) Capture(ctx context.Context, req CaptureBaselineRequest) (*Baseline, error) {
	var b Baseline
	if err := s.client.doRequest(ctx, "POST", "/api/v1/baselines", req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get retrieves a baseline by ID, including its permission entries
func (s *BaselineService) Get(ctx context.Context, id int64) (*Baseline, error) {
	path := fmt.Sprintf("/api/v1/baselines/%d", id)

	var b Baseline
	if err := s.client.doRequest(ctx, "GET", path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetActive retrieves the active baseline for a site
func (s *BaselineService) GetActive(ctx context.Context, siteID string) (*Baseline, error) {
	path := "/api/v1/baselines/active?site_id=" + url.QueryEscape(siteID)

	var b Baseline
	if err := s.client.doRequest(ctx, "GET", path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// List retrieves baseline metadata for a site, newest first
func (s *BaselineService) List(ctx context.Context, siteID string, opts *ListOptions) ([]Baseline, *PageInfo, error) {
	query := url.Values{}
	query.Set("site_id", siteID)
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
	}

	var page struct {
		Data []Baseline `json:"data"`
		PageInfo
	}
	if err := s.client.doRequest(ctx, "GET", "/api/v1/baselines?"+query.Encode(), nil, &page); err != nil {
		return nil, nil, err
	}
	return page.Data, &page.PageInfo, nil
}

// Activate makes the baseline the site's single active baseline
func (s *BaselineService) Activate(ctx context.Context, siteID string, id int64) error {
	path := fmt.Sprintf("/api/v1/baselines/%d/activate?site_id=%s", id, url.QueryEscape(siteID))
	return s.client.doRequest(ctx, "POST", path, nil, nil)
}

// Deactivate clears the active flag on a baseline
func (s *BaselineService) Deactivate(ctx context.Context, siteID string, id int64) error {
	path := fmt.Sprintf("/api/v1/baselines/%d/deactivate?site_id=%s", id, url.QueryEscape(siteID))
	return s.client.doRequest(ctx, "POST", path, nil, nil)
}

// Delete removes a baseline
func (s *BaselineService) Delete(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/v1/baselines/%d", id)
	return s.client.doRequest(ctx, "DELETE", path, nil, nil)
}

// Statistics computes aggregate statistics for a baseline
func (s *BaselineService) Statistics(ctx context.Context, id int64) (*BaselineStatistics, error) {
	path := fmt.Sprintf("/api/v1/baselines/%d/statistics", id)

	var stats BaselineStatistics
	if err := s.client.doRequest(ctx, "GET", path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
