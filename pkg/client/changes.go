package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ChangeService handles change ledger API calls
type ChangeService struct {
	client *Client
}

// ChangeListOptions contains options for listing changes
type ChangeListOptions struct {
	ListOptions
	SiteID     string     // Filter by site
	BaselineID int64      // Filter by baseline
	Types      []string   // Filter by change types
	Reviewed   *bool      // Filter by reviewed flag
	Since      *time.Time // Lower bound on detection time
}

// List retrieves detected permission changes, newest first
func (s *ChangeService) List(ctx context.Context, opts *ChangeListOptions) ([]ChangeRecord, *PageInfo, error) {
	query := url.Values{}

	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
		if opts.SiteID != "" {
			query.Set("site_id", opts.SiteID)
		}
		if opts.BaselineID != 0 {
			query.Set("baseline_id", strconv.FormatInt(opts.BaselineID, 10))
		}
		if len(opts.Types) > 0 {
			query.Set("types", strings.Join(opts.Types, ","))
		}
		if opts.Reviewed != nil {
			query.Set("reviewed", strconv.FormatBool(*opts.Reviewed))
		}
		if opts.Since != nil {
			query.Set("since", opts.Since.Format(time.RFC3339))
		}
	}

	path := "/api/v1/changes"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page struct {
		Data []ChangeRecord `json:"data"`
		PageInfo
	}
	if err := s.client.doRequest(ctx, "GET", path, nil, &page); err != nil {
		return nil, nil, err
	}
	return page.Data, &page.PageInfo, nil
}

// Get retrieves a single change record by ID
func (s *ChangeService) Get(ctx context.Context, id int64) (*ChangeRecord, error) {
	path := fmt.Sprintf("/api/v1/changes/%d", id)

	var rec ChangeRecord
	if err := s.client.doRequest(ctx, "GET", path, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkReviewed marks the given change records as reviewed, optionally
// attaching notes. Returns the number of records updated.
func (s *ChangeService) MarkReviewed(ctx context.Context, ids []int64, reviewedBy, notes string) (int, error) {
	req := struct {
		IDs        []int64 `json:"ids"`
		ReviewedBy string  `json:"reviewed_by"`
		Notes      string  `json:"notes,omitempty"`
	}{IDs: ids, ReviewedBy: reviewedBy, Notes: notes}

	var result struct {
		Reviewed int `json:"reviewed"`
	}
	if err := s.client.doRequest(ctx, "POST", "/api/v1/changes/review", req, &result); err != nil {
		return 0, err
	}
	return result.Reviewed, nil
}
