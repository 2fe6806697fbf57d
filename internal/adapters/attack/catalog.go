// Package attack loads the MITRE ATT&CK Enterprise techniques.
package attack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
	"github.com/lcalzada-xor/cyberiq/internal/cache"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

const (
	// DefaultURL is the STIX bundle of the Enterprise matrix.
	DefaultURL = "https://raw.githubusercontent.com/mitre/cti/master/enterprise-attack/enterprise-attack.json"

	// DefaultTTL keeps the matrix for a day; it changes a few times a year.
	DefaultTTL = 24 * time.Hour

	defaultTimeout = 60 * time.Second

	// The bundle is tens of megabytes and grows with each release.
	maxBundleBytes = 256 << 20

	cacheKey       = "enterprise"
	killChainName  = "mitre-attack"
	techniqueURL   = "https://attack.mitre.org/techniques/"
	attackPattern  = "attack-pattern"
	sourceNameATTK = "mitre-attack"
)

type bundle struct {
	Objects []stixObject `json:"objects"`
}

type stixObject struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Revoked     bool   `json:"revoked"`
	Deprecated  bool   `json:"x_mitre_deprecated"`
	References  []struct {
		SourceName string `json:"source_name"`
		ExternalID string `json:"external_id"`
	} `json:"external_references"`
	Phases []struct {
		KillChainName string `json:"kill_chain_name"`
		PhaseName     string `json:"phase_name"`
	} `json:"kill_chain_phases"`
	Platforms []string `json:"x_mitre_platforms"`
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithURL overrides the bundle location.
func WithURL(u string) Option {
	return func(c *Catalog) {
		if u != "" {
			c.url = u
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Catalog) {
		c.httpClient = h
	}
}

// WithTimeout sets the timeout on a copy of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Catalog) {
		h := *c.httpClient
		h.Timeout = d
		c.httpClient = &h
	}
}

// WithTTL sets how long a loaded matrix is served before refetching.
func WithTTL(d time.Duration) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithCache replaces the backing cache, e.g. to inject a clock.
func WithCache(store *cache.TTLCache[[]domain.Technique]) Option {
	return func(c *Catalog) {
		c.store = store
	}
}

// Catalog serves ATT&CK techniques from a TTL cache, loading the bundle on a
// miss. Concurrent misses share one download.
type Catalog struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	store      *cache.TTLCache[[]domain.Technique]
	group      singleflight.Group
}

// NewCatalog creates a Catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{
		url:        DefaultURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = cache.New[[]domain.Technique]("attack")
	}
	return c
}

// Techniques returns the cached matrix or loads it.
func (c *Catalog) Techniques(ctx context.Context) ([]domain.Technique, error) {
	if techs, ok := c.store.Get(cacheKey); ok {
		return techs, nil
	}
	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		return c.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Technique), nil
}

// Search implements ports.TechniqueCatalog.
func (c *Catalog) Search(ctx context.Context, terms []string, limit int) ([]domain.Technique, error) {
	techs, err := c.Techniques(ctx)
	if err != nil {
		return nil, err
	}
	return domain.MatchTechniques(techs, terms, limit), nil
}

// Stats implements ports.TechniqueCatalog. It never triggers a download.
func (c *Catalog) Stats() domain.TechniqueStats {
	techs, ok := c.store.Peek(cacheKey)
	if !ok {
		return domain.TechniqueStats{}
	}
	return domain.SummarizeTechniques(techs)
}

// Refresh reloads the matrix, keeping the cached one on failure. The window
// argument is ignored; it lets the catalog be warmed next to the sources.
func (c *Catalog) Refresh(ctx context.Context, _ int) error {
	_, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		return c.load(ctx)
	})
	return err
}

func (c *Catalog) load(ctx context.Context) ([]domain.Technique, error) {
	ctx, span := telemetry.Tracer("attack").Start(ctx, "attack.load")
	defer span.End()

	var b bundle
	if err := upstream.StreamJSON(ctx, c.httpClient, c.url, nil, maxBundleBytes, &b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.SourceFetches.WithLabelValues("attack", string(domain.FetchFailed)).Inc()
		slog.Warn("attack matrix load failed", "url", c.url, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrTechniquesUnavailable, err)
	}

	techs := c.parse(b.Objects)
	span.SetAttributes(attribute.Int("techniques", len(techs)))
	telemetry.SourceFetches.WithLabelValues("attack", string(domain.FetchFetched)).Inc()
	slog.Info("attack matrix loaded", "techniques", len(techs))

	c.store.Set(cacheKey, techs, c.ttl)
	return techs, nil
}

// parse keeps live attack-pattern objects that carry an ATT&CK id.
func (c *Catalog) parse(objects []stixObject) []domain.Technique {
	title := cases.Title(language.English)
	out := make([]domain.Technique, 0, len(objects)/2)
	for _, o := range objects {
		if o.Type != attackPattern || o.Revoked || o.Deprecated {
			continue
		}
		id := externalID(o)
		if id == "" {
			continue
		}

		var tactics []string
		for _, p := range o.Phases {
			if p.KillChainName == killChainName {
				tactics = append(tactics, title.String(strings.ReplaceAll(p.PhaseName, "-", " ")))
			}
		}

		out = append(out, domain.Technique{
			ID:           id,
			Name:         o.Name,
			Description:  o.Description,
			Tactics:      tactics,
			Platforms:    o.Platforms,
			Subtechnique: strings.Contains(id, "."),
			URL:          techniqueURL + strings.ReplaceAll(id, ".", "/") + "/",
		})
	}
	return out
}

func externalID(o stixObject) string {
	for _, r := range o.References {
		if r.SourceName == sourceNameATTK {
			return r.ExternalID
		}
	}
	return ""
}
