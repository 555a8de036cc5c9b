package client

import (
	"context"
	"fmt"
	"net/url"
)

// DetectionService handles change detection API calls
type DetectionService struct {
	client *Client
}

// RunSite runs change detection for a single site against its active
// baseline
func (s *DetectionService) RunSite(ctx context.Context, siteID string) (*SiteRunResult, error) {
	path := "/api/v1/detection/run?site_id=" + url.QueryEscape(siteID)

	var result SiteRunResult
	if err := s.client.doRequest(ctx, "POST", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunAll runs change detection for every site with an active baseline
func (s *DetectionService) RunAll(ctx context.Context) (*RunReport, error) {
	var report RunReport
	if err := s.client.doRequest(ctx, "POST", "/api/v1/detection/run-all", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Compare runs a dry-run comparison of a baseline against the site's
// current permissions without persisting change records
func (s *DetectionService) Compare(ctx context.Context, baselineID int64, useCache bool) (*ChangeSummary, error) {
	path := fmt.Sprintf("/api/v1/baselines/%d/compare?use_cache=%t", baselineID, useCache)

	var summary ChangeSummary
	if err := s.client.doRequest(ctx, "GET", path, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
