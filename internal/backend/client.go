// Package backend talks to the company/collection REST service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mmcdole/rolodex/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Rolodex/1.0"
)

// Client implements domain.CompanyRepository over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ domain.CompanyRepository = (*Client)(nil)

// NewClient creates a backend client. requestsPerSecond <= 0 disables the
// limiter.
func NewClient(baseURL string, requestsPerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// no client timeout: bulk mutations may take as long as the server needs
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// doRequest sends body (if any) as JSON and decodes the response into out
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	c.logger.Debug("backend request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend request failed", "error", err, "method", method, "path", path)
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail(data, path))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("backend request error", "status", resp.StatusCode, "path", path, "body", string(data))
		return fmt.Errorf("%w: unexpected status code %d: %s", domain.ErrTransport, resp.StatusCode, detail(data, path))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("JSON parse error", "error", err, "path", path, "bodyLen", len(data))
		return fmt.Errorf("%w: failed to parse response: %w", domain.ErrTransport, err)
	}
	return nil
}

// detail extracts FastAPI's {"detail": "..."} message, falling back to path
func detail(body []byte, path string) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return path
}

// withTimeout bounds read-only calls; bulk mutations are not bounded
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}

// CheckConflicts pre-flights adding ids to dest
func (c *Client) CheckConflicts(ctx context.Context, ids []domain.CompanyID, dest domain.CollectionID) (domain.ConflictReport, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp ConflictCheckResponse
	req := conflictCheckRequest{CompanyIDs: fromCompanyIDs(ids), TargetCollectionID: dest.String()}
	if err := c.doRequest(ctx, http.MethodPost, "/companies/check-conflicts", nil, req, &resp); err != nil {
		return domain.ConflictReport{}, err
	}
	return MapConflictReport(resp), nil
}

// CheckStatuses reports liked/ignored status of ids
func (c *Client) CheckStatuses(ctx context.Context, ids []domain.CompanyID) (domain.StatusSummary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp StatusCheckResponse
	req := companyIDsRequest{CompanyIDs: fromCompanyIDs(ids)}
	if err := c.doRequest(ctx, http.MethodPost, "/companies/check-statuses", nil, req, &resp); err != nil {
		return domain.StatusSummary{}, err
	}
	return MapStatusSummary(resp), nil
}

// BulkAdd queues adding ids to collection
func (c *Client) BulkAdd(ctx context.Context, collection domain.CollectionID, ids []domain.CompanyID, source domain.CollectionID) (domain.Receipt, error) {
	req := bulkAddRequest{CompanyIDs: fromCompanyIDs(ids)}
	if source != uuid.Nil {
		s := source.String()
		req.SourceCollectionID = &s
	}

	var resp BulkOperationResponse
	path := fmt.Sprintf("/collections/%s/companies/bulk-add", collection)
	if err := c.doRequest(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return domain.Receipt{}, err
	}
	return MapReceipt(resp), nil
}

// BulkRemove queues removing ids from collection
func (c *Client) BulkRemove(ctx context.Context, collection domain.CollectionID, ids []domain.CompanyID) (domain.Receipt, error) {
	var resp BulkOperationResponse
	path := fmt.Sprintf("/collections/%s/companies/bulk-remove", collection)
	req := companyIDsRequest{CompanyIDs: fromCompanyIDs(ids)}
	if err := c.doRequest(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return domain.Receipt{}, err
	}
	return MapReceipt(resp), nil
}

// AllIDsInScope returns every company id in the scope, not just one page
func (c *Client) AllIDsInScope(ctx context.Context, scope domain.Scope) ([]domain.CompanyID, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if scope.IsFiltered() {
		query := url.Values{}
		query.Set("q", scope.Query)
		if scope.CollectionID != uuid.Nil {
			query.Set("collection_id", scope.CollectionID.String())
		}
		var resp SearchIDsResponse
		if err := c.doRequest(ctx, http.MethodGet, "/search/ids", query, nil, &resp); err != nil {
			return nil, err
		}
		return toCompanyIDs(resp.CompanyIDs), nil
	}

	var ids []int
	path := fmt.Sprintf("/collections/%s/companies/ids", scope.CollectionID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &ids); err != nil {
		return nil, err
	}
	return toCompanyIDs(ids), nil
}

// OperationStatus returns the server record of a bulk job
func (c *Client) OperationStatus(ctx context.Context, operationID string) (domain.BulkOperation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp BulkOperationStatus
	path := "/operations/" + url.PathEscape(operationID) + "/status"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return domain.BulkOperation{}, err
	}
	return MapOperation(resp), nil
}

// GetCollections lists all collections with their sizes
func (c *Client) GetCollections(ctx context.Context) ([]domain.Collection, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp []CollectionMetadata
	if err := c.doRequest(ctx, http.MethodGet, "/collections", nil, nil, &resp); err != nil {
		return nil, err
	}
	return MapCollections(resp), nil
}

// GetCollectionPage returns one page of a collection
func (c *Client) GetCollectionPage(ctx context.Context, id domain.CollectionID, offset, limit int) (domain.CompanyPage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp CollectionOutput
	if err := c.doRequest(ctx, http.MethodGet, "/collections/"+id.String(), query, nil, &resp); err != nil {
		return domain.CompanyPage{}, err
	}

	coll, ok := mapCollection(resp.CollectionMetadata)
	if !ok {
		coll = domain.Collection{ID: id, Name: resp.CollectionName}
	}
	coll.Count = resp.Total
	return domain.CompanyPage{Collection: coll, Companies: MapCompanies(resp.Companies), Total: resp.Total}, nil
}

// SearchPage returns one page of companies matching scope.Query
func (c *Client) SearchPage(ctx context.Context, scope domain.Scope, offset, limit int) (domain.CompanyPage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := url.Values{}
	query.Set("q", scope.Query)
	query.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if scope.CollectionID != uuid.Nil {
		query.Set("collection_id", scope.CollectionID.String())
	}

	var resp SearchResponse
	if err := c.doRequest(ctx, http.MethodGet, "/search", query, nil, &resp); err != nil {
		return domain.CompanyPage{}, err
	}
	return domain.CompanyPage{
		Collection: domain.Collection{ID: scope.CollectionID},
		Companies:  MapCompanies(resp.Companies),
		Total:      resp.Total,
	}, nil
}

// GetMembership returns the authoritative collections and status of a company
func (c *Client) GetMembership(ctx context.Context, id domain.CompanyID) (domain.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp CompanyCollectionStatus
	path := fmt.Sprintf("/companies/%d/collections", id)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return domain.Membership{}, err
	}
	return MapMembership(resp), nil
}
