package scores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/nvdapi"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// Scored lookups use a seconds-scale timeout.
const defaultLookupTimeout = 10 * time.Second

// Option configures a score client.
type Option func(*client)

type client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// WithBaseURL overrides the upstream endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) {
		c.httpClient = h
	}
}

// WithTimeout sets the timeout on a copy of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		h := *c.httpClient
		h.Timeout = d
		c.httpClient = &h
	}
}

// WithAPIKey sets the upstream API key.
func WithAPIKey(key string) Option {
	return func(c *client) {
		c.apiKey = key
	}
}

func newClient(baseURL string, opts []Option) client {
	c := client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultLookupTimeout},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// CVSSClient resolves CVSS scores through the NVD CVE API.
type CVSSClient struct {
	client
}

// NewCVSSClient creates a severity provider backed by NVD.
func NewCVSSClient(opts ...Option) *CVSSClient {
	return &CVSSClient{client: newClient(nvdapi.DefaultURL, opts)}
}

// LookupSeverity implements ports.SeverityProvider.
func (c *CVSSClient) LookupSeverity(ctx context.Context, cveID string) (domain.SeverityScore, error) {
	u := fmt.Sprintf("%s?cveId=%s", c.baseURL, url.QueryEscape(cveID))

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"apiKey": c.apiKey}
	}

	var resp nvdapi.Response
	if err := upstream.GetJSON(ctx, c.httpClient, u, headers, &resp); err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) && se.NotFound() {
			return domain.SeverityScore{}, domain.ErrScoreNotFound
		}
		return domain.SeverityScore{}, &domain.LookupError{Provider: "cvss", CVE: cveID, Err: err}
	}

	for _, v := range resp.Vulnerabilities {
		if v.CVE.ID != cveID {
			continue
		}
		score, ok := v.CVE.BestScore()
		if !ok {
			return domain.SeverityScore{CWE: v.CVE.FirstCWE()}, domain.ErrScoreNotFound
		}
		return domain.SeverityScore{
			Score:    score.Value,
			Severity: score.Severity,
			Version:  score.Version,
			CWE:      v.CVE.FirstCWE(),
		}, nil
	}

	return domain.SeverityScore{}, domain.ErrScoreNotFound
}
