package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"replay/crumbs/internal/config"
	"replay/crumbs/internal/domain"
	"replay/crumbs/internal/upstream"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

var errTooManyRequests = errors.New("too many requests")

type ReplayClient interface {
	GetReplay(ctx context.Context, replayID string) (*domain.Replay, error)
	GetBreadcrumbs(ctx context.Context, replayID string) ([]domain.Breadcrumb, error)
}

type replayClient struct {
	rl         ratelimit.Limiter
	config     config.ReplayAPIConfig
	httpClient *resty.Client
	parser     *recordingParser
	hosts      upstream.HostSupplier

	// Circuit breaker for rate limiting
	circuitBreakerMutex sync.RWMutex
	openUntil           time.Time
	circuitBreakerDelay time.Duration
}

func NewReplayClient(cfg config.ReplayAPIConfig, hosts upstream.HostSupplier) ReplayClient {
	client := resty.New().
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.HTTPRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "replaycrumbs/1.0")

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &replayClient{
		rl:                  ratelimit.New(cfg.MaxRequestsPerSecond),
		config:              cfg,
		httpClient:          client,
		parser:              newRecordingParser(),
		hosts:               hosts,
		circuitBreakerDelay: time.Duration(cfg.CircuitBreakerDelay) * time.Second,
	}
}

type replayDetailsResponse struct {
	Data struct {
		ID        string `json:"id"`
		ProjectID string `json:"project_id"`
		StartedAt string `json:"started_at"`
		CountURLs int    `json:"count_urls"`
	} `json:"data"`
}

func (c *replayClient) replayPath(replayID string) string {
	return fmt.Sprintf("/api/0/projects/%s/%s/replays/%s/",
		url.PathEscape(c.config.Organization),
		url.PathEscape(c.config.Project),
		url.PathEscape(replayID))
}

func (c *replayClient) GetReplay(ctx context.Context, replayID string) (*domain.Replay, error) {
	body, err := c.fetch(ctx, c.replayPath(replayID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replay %s: %w", replayID, err)
	}

	var resp replayDetailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode replay %s: %w", replayID, err)
	}

	replay := &domain.Replay{
		ID:          resp.Data.ID,
		ProjectSlug: c.config.Project,
		Count:       resp.Data.CountURLs,
	}
	if replay.ID == "" {
		replay.ID = replayID
	}

	if resp.Data.StartedAt != "" {
		startedAt, err := time.Parse(time.RFC3339Nano, resp.Data.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at %q for replay %s: %w", resp.Data.StartedAt, replayID, err)
		}
		replay.StartedAt = startedAt.UnixMilli()
	}

	log.Debugf("Fetched replay %s started at %d", replay.ID, replay.StartedAt)
	return replay, nil
}

func (c *replayClient) GetBreadcrumbs(ctx context.Context, replayID string) ([]domain.Breadcrumb, error) {
	body, err := c.fetch(ctx, c.replayPath(replayID)+"recording-segments/?download=true")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recording for replay %s: %w", replayID, err)
	}

	crumbs, err := c.parser.ParseBreadcrumbs(replayID, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recording for replay %s: %w", replayID, err)
	}

	log.Debugf("Parsed %d navigation breadcrumbs for replay %s", len(crumbs), replayID)
	return crumbs, nil
}

func (c *replayClient) isCircuitBreakerOpen() bool {
	c.circuitBreakerMutex.RLock()
	now := time.Now()
	wasOpen := now.Before(c.openUntil)
	wasTriggered := !c.openUntil.IsZero()
	c.circuitBreakerMutex.RUnlock()

	if !wasOpen && wasTriggered {
		c.circuitBreakerMutex.Lock()
		if !c.openUntil.IsZero() && now.After(c.openUntil) {
			c.openUntil = time.Time{}
			log.Infof("✅ Circuit breaker closed - requests to the replay API are allowed again")
		}
		c.circuitBreakerMutex.Unlock()
	}

	return wasOpen
}

func (c *replayClient) triggerCircuitBreaker() {
	c.circuitBreakerMutex.Lock()
	defer c.circuitBreakerMutex.Unlock()

	c.openUntil = time.Now().Add(c.circuitBreakerDelay)
	log.Warnf("🚫 Circuit breaker activated! Replay API requests disabled until %v",
		c.openUntil.Format("15:04:05"))
}

func (c *replayClient) remainingCircuitBreakerTime() time.Duration {
	c.circuitBreakerMutex.RLock()
	defer c.circuitBreakerMutex.RUnlock()

	remaining := time.Until(c.openUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// fetch issues a GET against the next host. A 429 fails over once to the host
// after the limited one; if that is rate limited too the circuit breaker opens.
func (c *replayClient) fetch(ctx context.Context, path string) ([]byte, error) {
	if c.isCircuitBreakerOpen() {
		remaining := c.remainingCircuitBreakerTime()
		return nil, fmt.Errorf("circuit breaker is open - requests disabled for %v more", remaining.Round(time.Second))
	}

	host := c.hosts.Get()
	body, err := c.get(ctx, host+path)
	if !errors.Is(err, errTooManyRequests) {
		return body, err
	}

	log.Warnf("🚫 Rate limited by %s for %s", host, path)

	if c.hosts.Len() > 1 {
		mirror := c.hosts.After(host)
		log.Infof("🔄 Retrying on %s...", mirror)

		body, err = c.get(ctx, mirror+path)
		if !errors.Is(err, errTooManyRequests) {
			return body, err
		}
	}

	c.triggerCircuitBreaker()
	return nil, fmt.Errorf("rate limited - circuit breaker activated for %v", c.circuitBreakerDelay)
}

func (c *replayClient) get(ctx context.Context, target string) ([]byte, error) {
	c.rl.Take()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(target)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, domain.ErrReplayNotFound
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, errTooManyRequests
	case resp.IsError():
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	return []byte(resp.String()), nil
}
