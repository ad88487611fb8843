// Package cmr implements the client for NASA's Common Metadata Repository
// granule search API.
package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chengcli/qkun/internal/geo"
	"github.com/chengcli/qkun/internal/observability"
)

// Link relation types used in CMR granule entries.
const (
	dataRel   = "http://esipfed.org/ns/fedsearch/1.1/data#"
	browseRel = "http://esipfed.org/ns/fedsearch/1.1/browse#"
)

// Client queries the CMR granule search endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a CMR search client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Query describes one granule search.
type Query struct {
	ConceptID string     // CMR collection concept ID, required
	Temporal  string     // "start,end" in ISO 8601, optional
	Bounds    geo.GeoBox // bounding box filter, optional when global
	PageSize  int        // results per page, default 100
	MaxPages  int        // pagination cap, default 10
}

func (q Query) String() string {
	return fmt.Sprintf("Query(concept_id=%s, temporal=%s, bounds=%s, page_size=%d, max_pages=%d)",
		q.ConceptID, q.Temporal, q.Bounds.BoundingBoxParam(), q.pageSize(), q.maxPages())
}

func (q Query) pageSize() int {
	if q.PageSize > 0 {
		return q.PageSize
	}
	return 100
}

func (q Query) maxPages() int {
	if q.MaxPages > 0 {
		return q.MaxPages
	}
	return 10
}

func (q Query) params(page int) url.Values {
	v := url.Values{
		"collection_concept_id": {q.ConceptID},
		"page_size":             {strconv.Itoa(q.pageSize())},
		"page_num":              {strconv.Itoa(page)},
	}
	if q.Temporal != "" {
		v.Set("temporal", q.Temporal)
	}
	if !q.Bounds.IsGlobal() && q.Bounds != (geo.GeoBox{}) {
		v.Set("bounding_box", q.Bounds.BoundingBoxParam())
	}
	return v
}

// SearchPage fetches one page of granule entries. An empty slice means the
// result set is exhausted.
func (c *Client) SearchPage(ctx context.Context, q Query, page int) ([]Granule, error) {
	if q.ConceptID == "" {
		return nil, fmt.Errorf("search requires a concept ID")
	}

	fullURL := c.baseURL + "?" + q.params(page).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.SearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.SearchRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("CMR API error: status %d: %s", resp.StatusCode, body)
	}

	var cmrResp response
	if err := json.NewDecoder(resp.Body).Decode(&cmrResp); err != nil {
		c.metrics.SearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.metrics.SearchRequests.WithLabelValues("success").Inc()

	return cmrResp.Feed.Entry, nil
}

// Pages streams granule pages to fn, stopping at the first empty page, the
// page cap, or an error from fn.
func (c *Client) Pages(ctx context.Context, q Query, fn func(page int, granules []Granule) error) error {
	for page := 1; page <= q.maxPages(); page++ {
		entries, err := c.SearchPage(ctx, q, page)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		c.metrics.SearchPages.Inc()
		c.metrics.GranulesFound.Add(float64(len(entries)))
		c.logger.Debug("got granule page", "page", page, "granules", len(entries))
		if err := fn(page, entries); err != nil {
			return err
		}
	}
	return nil
}

// Search collects all pages into a single slice.
func (c *Client) Search(ctx context.Context, q Query) ([]Granule, error) {
	var all []Granule
	err := c.Pages(ctx, q, func(_ int, granules []Granule) error {
		all = append(all, granules...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// CMR API response types.

type response struct {
	Feed feed `json:"feed"`
}

type feed struct {
	Entry []Granule `json:"entry"`
}
