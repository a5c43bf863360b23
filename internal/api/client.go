// Package api provides the HTTP client for the remote bookmark server
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tildaslashalef/linkmark/internal/config"
	"github.com/tildaslashalef/linkmark/internal/loggy"
)

// Client handles HTTP communication with the bookmark server
type Client struct {
	baseURL      string
	token        string
	clientName   string
	httpClient   *http.Client
	limiter      *rate.Limiter
	cooldown     *cooldownState
	logger       *loggy.Logger
	settingsRepo config.SettingsRepository
}

// NewClient creates a new HTTP client for server communication
func NewClient(cfg config.ServerConfig, syncCfg config.SyncConfig, logger *loggy.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		clientName: cfg.ClientName,
		httpClient: httpClient,
		limiter:    newLimiter(syncCfg.RequestsPerMin, syncCfg.RateBurst),
		cooldown:   newCooldownState(),
		logger:     logger,
	}
}

// newLimiter builds a client-side request limiter from a per-minute budget.
// A non-positive budget disables limiting.
func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// SetToken updates the authentication token
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetBaseURL updates the server base URL
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimSuffix(url, "/")
}

// SetSettingsRepository sets the settings repository for the client
func (c *Client) SetSettingsRepository(repo config.SettingsRepository) {
	c.settingsRepo = repo
}

// GetToken returns the current token, checking the settings repository if available
func (c *Client) GetToken() string {
	if c.settingsRepo != nil && c.token == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		token, err := c.settingsRepo.GetSetting(ctx, config.KeyServerToken)
		if err != nil {
			c.logger.Warn("Failed to get token from settings, using cached token", "error", err)
		} else if token != "" {
			c.token = token
		}
	}

	return c.token
}

// HasToken reports whether an API credential is configured
func (c *Client) HasToken() bool {
	return c.GetToken() != ""
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// LinkPayload is the wire representation of a link mutation
type LinkPayload struct {
	LocalID    string   `json:"-"`
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Collection string   `json:"collection,omitempty"`
}

// CollectionPayload is the wire representation of a collection mutation
type CollectionPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// RemoteLink is a link as reported by the server
type RemoteLink struct {
	ID    string   `json:"id"`
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// RemoteCollection is a collection as reported by the server
type RemoteCollection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	LinkCount   int    `json:"link_count,omitempty"`
}

// apiResponse is the common envelope returned by every endpoint
type apiResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message,omitempty"`
	ID          string             `json:"id,omitempty"`
	Links       []RemoteLink       `json:"links,omitempty"`
	Collections []RemoteCollection `json:"collections,omitempty"`
}

// CreateLink creates a link remotely and returns its remote ID
func (c *Client) CreateLink(ctx context.Context, payload LinkPayload) (string, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, c.baseURL+"/api/v1/links", payload)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateLink updates a remote link
func (c *Client) UpdateLink(ctx context.Context, remoteID string, payload LinkPayload) error {
	url := fmt.Sprintf("%s/api/v1/links/%s", c.baseURL, remoteID)
	_, err := c.sendRequest(ctx, http.MethodPut, url, payload)
	return err
}

// DeleteLink deletes a remote link
func (c *Client) DeleteLink(ctx context.Context, remoteID string) error {
	url := fmt.Sprintf("%s/api/v1/links/%s", c.baseURL, remoteID)
	_, err := c.sendRequest(ctx, http.MethodDelete, url, nil)
	return err
}

// AssignLinkToCollection moves a remote link into a remote collection
func (c *Client) AssignLinkToCollection(ctx context.Context, linkRemoteID, collectionRemoteID string) error {
	url := fmt.Sprintf("%s/api/v1/links/%s/collection", c.baseURL, linkRemoteID)
	body := map[string]string{"collection_id": collectionRemoteID}
	_, err := c.sendRequest(ctx, http.MethodPost, url, body)
	return err
}

// CreateCollection creates a collection remotely and returns its remote ID
func (c *Client) CreateCollection(ctx context.Context, payload CollectionPayload) (string, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, c.baseURL+"/api/v1/collections", payload)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateCollection updates a remote collection
func (c *Client) UpdateCollection(ctx context.Context, remoteID string, payload CollectionPayload) error {
	url := fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, remoteID)
	_, err := c.sendRequest(ctx, http.MethodPut, url, payload)
	return err
}

// DeleteCollection deletes a remote collection
func (c *Client) DeleteCollection(ctx context.Context, remoteID string) error {
	url := fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, remoteID)
	_, err := c.sendRequest(ctx, http.MethodDelete, url, nil)
	return err
}

// ListCollections retrieves the full remote collection list
func (c *Client) ListCollections(ctx context.Context) ([]RemoteCollection, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/api/v1/collections", nil)
	if err != nil {
		return nil, err
	}
	return resp.Collections, nil
}

// GetCollectionLinks retrieves the links of a remote collection
func (c *Client) GetCollectionLinks(ctx context.Context, collectionRemoteID string) ([]RemoteLink, error) {
	url := fmt.Sprintf("%s/api/v1/collections/%s/links", c.baseURL, collectionRemoteID)
	resp, err := c.sendRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return resp.Links, nil
}

// GetUncategorizedLinks retrieves remote links that belong to no collection
func (c *Client) GetUncategorizedLinks(ctx context.Context) ([]RemoteLink, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/api/v1/links/uncategorized", nil)
	if err != nil {
		return nil, err
	}
	return resp.Links, nil
}

// VerifyToken verifies if the current token is valid
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth/verify", nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return false, nil
	default:
		return false, decodeAPIError(resp)
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.GetToken())
	req.Header.Set("Content-Type", "application/json")
	if c.clientName != "" {
		req.Header.Set("X-Client-Name", c.clientName)
	}
}

// sendRequest sends a request to the API, enforcing the rate-limit gates
// before any network I/O happens.
func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) (*apiResponse, error) {
	// Fail fast while the 429 cooldown is active rather than silently blocking
	if err := c.cooldown.check(); err != nil {
		return nil, err
	}
	if !c.limiter.Allow() {
		return nil, &RateLimitError{RetryAfter: time.Second}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.cooldown.note(resp)
		c.logger.Warn("Server rate limit hit", "url", url, "cooldown", c.cooldown.current())
		return nil, decodeAPIError(resp)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	// a 2xx status with a failure envelope is still a failure
	if !apiResp.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiResp.Message}
	}

	return &apiResp, nil
}

// decodeAPIError converts a non-2xx response into an *APIError
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
		apiErr.Message = resp.Status
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
