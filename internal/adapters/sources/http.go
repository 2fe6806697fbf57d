package sources

import (
	"net/http"
	"time"
)

// Bulk feeds can be large; the timeout is tens of seconds.
const defaultFeedTimeout = 30 * time.Second

// Option configures a fetcher.
type Option func(*settings)

type settings struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	now        func() time.Time
}

// WithBaseURL overrides the upstream endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		s.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout on a copy of the client, so a
// shared client such as http.DefaultClient is left as it was.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		c := *s.httpClient
		c.Timeout = d
		s.httpClient = &c
	}
}

// WithAPIKey sets the upstream API key where the source accepts one.
func WithAPIKey(key string) Option {
	return func(s *settings) {
		s.apiKey = key
	}
}

// WithNow overrides the time source used for window computation.
func WithNow(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func newSettings(baseURL string, opts []Option) settings {
	s := settings{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultFeedTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// windowStart returns the first day included in a window of windowDays
// ending at now. windowDays <= 0 means no lower bound.
func windowStart(now time.Time, windowDays int) (time.Time, bool) {
	if windowDays <= 0 {
		return time.Time{}, false
	}
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -windowDays), true
}
