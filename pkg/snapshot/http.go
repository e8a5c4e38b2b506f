package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum snapshot body size (2MB)
	MaxResponseSize = 2 * 1024 * 1024
)

// HTTPConfig holds the external CRM endpoint configuration
type HTTPConfig struct {
	// BaseURL is the lead collection, e.g. https://crm.example.com/odata/Lead
	BaseURL         string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	Headers         map[string]string
}

// DefaultHTTPConfig returns default client settings for baseURL
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:         baseURL,
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// HTTPFetcher reads lead snapshots from a REST endpoint at {BaseURL}/{leadID}. Both a
// bare JSON object and an OData {"value": [...]} envelope are accepted.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	headers map[string]string
	logger  ectologger.Logger
}

func NewHTTPFetcher(cfg HTTPConfig, logger ectologger.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		logger:  logger,
	}
}

// Fetch performs the GET and decodes the snapshot.
func (f *HTTPFetcher) Fetch(ctx context.Context, leadID string) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.HTTPFetcher.Fetch")
	defer span.End()

	endpoint := f.baseURL + "/" + url.PathEscape(leadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WithContext(ctx).WithError(err).Errorf("Snapshot request failed: GET %s", endpoint)
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	f.logger.WithContext(ctx).Debugf("HTTP GET %s -> %d (%s)", endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("lead %s: %w", leadID, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("snapshot request for lead %s returned status %d", leadID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("snapshot body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	return decode(leadID, body)
}

func decode(leadID string, body []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for lead %s: %w", leadID, err)
	}

	values, ok := payload["value"].([]any)
	if !ok {
		return payload, nil
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("lead %s: %w", leadID, ErrNotFound)
	}
	record, ok := values[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot shape for lead %s", leadID)
	}
	return record, nil
}
