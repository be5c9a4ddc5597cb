// Package client consumes the search service: query submission with
// in-flight dedup, SSE/poll status tracking, and a local quota cache kept
// eventually consistent with the server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/night131rd/referensiku.ai-sub000/app/models"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrQuotaExhausted means the server refused the search: no quota left.
	ErrQuotaExhausted = errors.New("search quota exhausted")
	// ErrUpstream means the service or its backend was unreachable or failed.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrTimeout means a bounded wait elapsed; the task may still complete.
	ErrTimeout = errors.New("timed out")
	// ErrFallback means the service flagged its response as fallback content
	// instead of a real search result.
	ErrFallback = errors.New("backend returned fallback")
)

// How long a finished submission still deduplicates identical resubmits.
// Covers the accidental double-click without serving stale task ids forever.
const dedupWindow = 2 * time.Second

// recentSearch is a successful submission kept around for dedupWindow.
type recentSearch struct {
	resp models.SearchResponse
	at   time.Time
}

// Client talks to the search service for one user (or one anonymous visitor).
type Client struct {
	baseURL string
	httpc   *http.Client

	// token is the session bearer token; empty for anonymous visitors.
	token string

	mu          sync.Mutex
	anonymousID string
	recent      map[string]recentSearch

	inflight singleflight.Group

	// Quota mirrors the server's last observed quota record. Advisory only;
	// the server decrement is the authority.
	Quota *QuotaCache
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the session bearer token for authenticated calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithAnonymousID restores a previously persisted anonymous token.
func WithAnonymousID(id string) Option {
	return func(c *Client) { c.anonymousID = id }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a client for the service at baseURL. Anonymous clients mint a
// local token immediately so the identity is stable from the first request.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		recent:  make(map[string]recentSearch),
		Quota:   NewQuotaCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.token == "" && c.anonymousID == "" {
		c.anonymousID = "anon_" + uuid.NewString()
	}
	return c
}

// AnonymousID returns the anonymous token, for persistence across sessions.
func (c *Client) AnonymousID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anonymousID
}

// StartSearch submits a query. Identical submissions (same query+year+mode)
// share one result while in flight and for dedupWindow after completion, so
// a double-click cannot spend two quota units even when the clicks do not
// overlap. Failures are not held; a resubmit after an error goes out again.
func (c *Client) StartSearch(ctx context.Context, query, year, mode string) (models.SearchResponse, error) {
	if year == "" {
		year = "-"
	}
	if mode == "" {
		mode = "quick"
	}
	key := fmt.Sprintf("search|%s|%s|%s", query, year, mode)

	c.mu.Lock()
	if r, ok := c.recent[key]; ok && time.Since(r.at) < dedupWindow {
		c.mu.Unlock()
		return r.resp, nil
	}
	c.mu.Unlock()

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		resp, err := c.submitSearch(ctx, models.SearchRequest{Query: query, Year: year, Mode: mode})
		if err != nil {
			return models.SearchResponse{}, err
		}

		c.mu.Lock()
		c.recent[key] = recentSearch{resp: resp, at: time.Now()}
		c.mu.Unlock()
		time.AfterFunc(dedupWindow, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if r, ok := c.recent[key]; ok && time.Since(r.at) >= dedupWindow {
				delete(c.recent, key)
			}
		})
		return resp, nil
	})
	if err != nil {
		return models.SearchResponse{}, err
	}
	return v.(models.SearchResponse), nil
}

func (c *Client) submitSearch(ctx context.Context, req models.SearchRequest) (models.SearchResponse, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/search", req)
	if err != nil {
		return models.SearchResponse{}, err
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return models.SearchResponse{}, errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	c.absorbIdentity(resp)
	c.absorbRateLimit(resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.SearchResponse{}, ErrQuotaExhausted
	}
	if resp.StatusCode != http.StatusOK {
		return models.SearchResponse{}, fmt.Errorf("%w: search returned %s", ErrUpstream, resp.Status)
	}

	var out models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.SearchResponse{}, fmt.Errorf("%w: decode search response: %v", ErrUpstream, err)
	}
	if out.Fallback {
		if out.Error != "" {
			return models.SearchResponse{}, fmt.Errorf("%w: %s", ErrFallback, out.Error)
		}
		return models.SearchResponse{}, ErrFallback
	}
	return out, nil
}

// GetFinalAnswer fetches the polished answer for a completed task.
func (c *Client) GetFinalAnswer(ctx context.Context, taskID string) (models.StatusEvent, error) {
	var out models.StatusEvent
	if err := c.getJSON(ctx, "/answer/"+taskID, &out); err != nil {
		return models.StatusEvent{}, err
	}
	return out, nil
}

// GetBibliography fetches citations for a completed task. Not-found and
// not-ready are tolerated as an empty bibliography so rendering can proceed.
func (c *Client) GetBibliography(ctx context.Context, taskID string) ([]string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/bibliography/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return []string{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: bibliography returned %s", ErrUpstream, resp.Status)
	}

	var out struct {
		Bibliography []string `json:"bibliography"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode bibliography: %v", ErrUpstream, err)
	}
	return out.Bibliography, nil
}

// RefreshQuota pulls the authoritative quota record into the local cache.
func (c *Client) RefreshQuota(ctx context.Context) error {
	var out struct {
		Role      string `json:"role"`
		Remaining int    `json:"remaining"`
		Total     int    `json:"total"`
	}
	if err := c.getJSON(ctx, "/user/info", &out); err != nil {
		return err
	}
	c.Quota.Update(QuotaSnapshot{
		Role:       out.Role,
		Remaining:  out.Remaining,
		Total:      out.Total,
		ObservedAt: time.Now(),
	})
	return nil
}

// RunQuotaReconciler refreshes the quota cache on a fixed interval until ctx
// is done. An immediate refresh runs first so mounting is never blank.
func (c *Client) RunQuotaReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	// First pass; reconciliation failure is tolerated, the cache stays stale.
	_ = c.RefreshQuota(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.RefreshQuota(ctx)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newJSONRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	c.absorbIdentity(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrUpstream, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachIdentity(req)
	return req, nil
}

// attachIdentity sends the bearer token when present; the anonymous token
// rides along regardless so the server can keep quota continuity.
func (c *Client) attachIdentity(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Lock()
	if c.anonymousID != "" {
		req.Header.Set("X-Anonymous-ID", c.anonymousID)
	}
	c.mu.Unlock()
}

// absorbIdentity adopts a server-minted anonymous token.
func (c *Client) absorbIdentity(resp *http.Response) {
	if minted := resp.Header.Get("X-Anonymous-ID"); minted != "" {
		c.mu.Lock()
		c.anonymousID = minted
		c.mu.Unlock()
	}
}

// absorbRateLimit feeds quota headers from a search response into the cache.
func (c *Client) absorbRateLimit(resp *http.Response) {
	limit := resp.Header.Get("X-RateLimit-Limit-Daily")
	remaining := resp.Header.Get("X-RateLimit-Remaining-Daily")
	if limit == "" || remaining == "" {
		return
	}
	total, err := strconv.Atoi(limit)
	if err != nil {
		return
	}
	left, err := strconv.Atoi(remaining)
	if err != nil {
		return
	}
	prev := c.Quota.Read()
	c.Quota.Update(QuotaSnapshot{
		Role:       prev.Role,
		Remaining:  left,
		Total:      total,
		ObservedAt: time.Now(),
	})
}
