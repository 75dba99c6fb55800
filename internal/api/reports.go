package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/nhle/costdesk/internal/model"
)

func rangeQuery(rng model.ReportRange) string {
	params := url.Values{}
	if rng.From != "" {
		params.Set("from", rng.From)
	}
	if rng.To != "" {
		params.Set("to", rng.To)
	}
	if len(params) == 0 {
		return ""
	}
	return "?" + params.Encode()
}

// GetReportSummary returns dashboard totals for the range.
func (c *Client) GetReportSummary(ctx context.Context, rng model.ReportRange) (*model.ReportSummary, error) {
	var summary model.ReportSummary
	if err := c.get(ctx, "/reports/summary"+rangeQuery(rng), &summary); err != nil {
		return nil, fmt.Errorf("api.GetReportSummary: %w", err)
	}
	return &summary, nil
}

// ExportReportCSV downloads the CSV export for the range.
func (c *Client) ExportReportCSV(ctx context.Context, rng model.ReportRange) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/reports/export"+rangeQuery(rng), nil)
	if err != nil {
		return nil, fmt.Errorf("api.ExportReportCSV: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api.ExportReportCSV: do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api.ExportReportCSV: %w", readHTTPError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api.ExportReportCSV: read body: %w", err)
	}
	return data, nil
}
