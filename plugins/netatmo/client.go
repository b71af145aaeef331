package netatmo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/oauth"
	"github.com/joshp123/gotherm/internal/rate"
)

// HTTPStatusError is returned for non-200 API responses.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("netatmo api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Client talks to the Netatmo Energy API and feeds the climate registry.
type Client struct {
	baseURL    string
	oauth      *oauth.Manager
	climate    *Climate
	httpClient *http.Client

	// updateMu serializes refresh cycles so the poll loop and
	// scrape-triggered fetches never interleave topology and status.
	updateMu sync.Mutex
}

// NewClient builds a client with S3-backed OAuth state persistence.
func NewClient(cfg Config, oauthCfg config.OAuthConfig) (*Client, error) {
	store, err := oauth.NewS3Store(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("netatmo blob store: %w", err)
	}
	return NewClientWithStore(cfg, OAuthDeclaration(cfg), store, oauth.RefreshInterval(oauthCfg))
}

// NewClientWithStore builds a client against an explicit blob store.
func NewClientWithStore(cfg Config, decl oauth.Declaration, store oauth.BlobStore, refreshInterval time.Duration) (*Client, error) {
	manager, err := oauth.NewManager(decl, cfg.BootstrapFile, store)
	if err != nil {
		return nil, fmt.Errorf("netatmo oauth: %w", err)
	}
	manager.Start(context.Background(), refreshInterval)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		oauth:      manager,
		climate:    NewClimate(),
		httpClient: rate.WrapHTTP(rateLimits(), &http.Client{Timeout: 15 * time.Second}),
	}, nil
}

// Update runs one refresh cycle: topology when none is loaded yet, then
// status for every known home.
func (c *Client) Update(ctx context.Context) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	if c.climate.Empty() {
		if err := c.fetchTopology(ctx); err != nil {
			return err
		}
	}
	return c.fetchStatus(ctx)
}

// UpdateTopology forces a full topology rebuild, then reapplies status.
func (c *Client) UpdateTopology(ctx context.Context) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	if err := c.fetchTopology(ctx); err != nil {
		return err
	}
	return c.fetchStatus(ctx)
}

// Views snapshots every home the client currently tracks.
func (c *Client) Views() []HomeView {
	return c.climate.Views()
}

// View snapshots a single home.
func (c *Client) View(homeID string) (HomeView, bool) {
	return c.climate.View(homeID)
}

// SetThermMode switches a home's thermostat mode. endTime only applies to
// the temporary modes hg and away; scheduleID only applies to mode
// schedule. The raw API response body is returned on success.
func (c *Client) SetThermMode(ctx context.Context, homeID, mode string, endTime *int64, scheduleID *string) (json.RawMessage, error) {
	if err := c.climate.checkThermMode(homeID, mode, scheduleID); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("home_id", homeID)
	form.Set("mode", mode)
	if endTime != nil && (mode == "hg" || mode == "away") {
		form.Set("endtime", strconv.FormatInt(*endTime, 10))
	}
	if scheduleID != nil && mode == "schedule" {
		form.Set("schedule_id", *scheduleID)
	}

	return c.doRequest(ctx, "/api/setthermmode", form, false)
}

// SwitchHomeSchedule makes the given schedule the home's active one.
func (c *Client) SwitchHomeSchedule(ctx context.Context, homeID, scheduleID string) error {
	if err := c.climate.checkSchedule(homeID, scheduleID); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("home_id", homeID)
	form.Set("schedule_id", scheduleID)

	_, err := c.doRequest(ctx, "/api/switchhomeschedule", form, false)
	return err
}

func (c *Client) fetchTopology(ctx context.Context) error {
	// Rebuilds must see the provider's current graph, never a cached copy.
	payload, err := c.postForm(ctx, "/api/homesdata", url.Values{}, false)
	if err != nil {
		return err
	}
	return c.climate.Process(payload)
}

func (c *Client) fetchStatus(ctx context.Context) error {
	for _, homeID := range c.climate.HomeIDs() {
		form := url.Values{}
		form.Set("home_id", homeID)

		// Status reads are cacheable so scrapes and the poll loop coalesce
		// instead of each spending provider budget.
		payload, err := c.postForm(ctx, "/api/homestatus", form, true)
		if err != nil {
			return err
		}
		if err := c.climate.Process(payload); err != nil {
			return err
		}
	}
	return nil
}

// postForm sends a form-encoded POST and unwraps the response envelope
// down to its body.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, cacheable bool) (Payload, error) {
	body, err := c.doRequest(ctx, path, form, cacheable)
	if err != nil {
		return Payload{}, err
	}

	var envelope struct {
		Status string  `json:"status"`
		Body   Payload `json:"body"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Payload{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return envelope.Body, nil
}

func (c *Client) doRequest(ctx context.Context, path string, form url.Values, cacheable bool) (json.RawMessage, error) {
	token, err := c.oauth.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if !cacheable {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.oauth.TriggerRefresh(ctx)
		return nil, fmt.Errorf("netatmo api unauthorized; refresh triggered")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
