package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/extract"
	"github.com/qaforge/backend/internal/metrics"
	"github.com/qaforge/backend/pkg/logger"
	"github.com/qaforge/backend/pkg/retry"
)

// StatusError is a non-2xx response. Only the statuses in retryableStatus
// are worth retrying; everything else is a permanent fetch failure.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsPermanent reports whether err is a non-retryable HTTP status failure.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !retryableStatus[se.Code]
}

// Result is one fetched-and-extracted capture of a URL.
type Result struct {
	URL         string
	Text        string
	UserAgent   string
	RetrievedAt time.Time
}

type Config struct {
	MaxAttempts   int
	BackoffFactor float64
	Timeout       time.Duration
	Delay         time.Duration
	UserAgents    []string
}

// Fetcher retrieves URLs with bounded retry, a rotating client identity and
// a write-through cache. It owns its http.Client; nothing here is a
// process-wide singleton.
type Fetcher struct {
	httpClient *http.Client
	cache      Cache
	agents     *agentPool
	retryCfg   retry.Config
	delay      time.Duration
	sleep      func(context.Context, time.Duration)
}

func NewFetcher(cfg Config, cache Cache) *Fetcher {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = 0.3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	retryCfg := retry.BackoffConfig(cfg.MaxAttempts, cfg.BackoffFactor, logger.GetLogger())
	retryCfg.IsRetryable = func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return retryableStatus[se.Code]
		}
		// Transport-level failures (connection reset, timeout) are transient.
		return true
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		agents:     newAgentPool(cfg.UserAgents, time.Now().UnixNano()),
		retryCfg:   retryCfg,
		delay:      cfg.Delay,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Fetch returns the extracted text for url. A cache hit short-circuits the
// network entirely and only refreshes the timestamp. On a miss the page is
// fetched with retry, extracted, cached, and the inter-request delay is
// applied before returning. Nothing is cached on failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := validateURL(url); err != nil {
		return nil, err
	}

	if entry, ok, err := f.cache.Get(ctx, url); err != nil {
		logger.Warn("Scrape cache read failed", zap.String("url", url), zap.Error(err))
	} else if ok {
		metrics.CacheHits.Inc()
		logger.Info("Using cached content", zap.String("url", url))
		return &Result{
			URL:         url,
			Text:        entry.Text,
			UserAgent:   entry.UserAgent,
			RetrievedAt: time.Now().UTC(),
		}, nil
	}
	metrics.CacheMisses.Inc()

	userAgent := f.agents.pick()
	logger.Info("Fetching URL", zap.String("url", url))

	body, err := retry.DoWithResult(ctx, f.retryCfg, func() (string, error) {
		return f.get(ctx, url, userAgent)
	})
	if err != nil {
		metrics.FetchFailures.Inc()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	text := extract.Text(body)

	if err := f.cache.Set(ctx, url, &Entry{Text: text, UserAgent: userAgent}); err != nil {
		logger.Warn("Scrape cache write failed", zap.String("url", url), zap.Error(err))
	}

	if f.delay > 0 {
		f.sleep(ctx, f.delay)
	}

	return &Result{
		URL:         url,
		Text:        text,
		UserAgent:   userAgent,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

var ErrInvalidURL = errors.New("invalid url")

func validateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, url, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(data), nil
}
