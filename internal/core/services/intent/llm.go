package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// StrategyLLM names the model-backed resolver.
const StrategyLLM = "llm"

// SystemPrompt is the fixed instruction schema sent with every query.
const SystemPrompt = `You translate questions about software vulnerabilities into a JSON search intent.
Reply with exactly one JSON object and nothing else, using these fields:
{
  "sources": ["kev" | "nvd" | "advisory"],   // only the sources the user names; all three if none
  "keywords": ["lowercase search terms"],     // matched against title and description
  "vendor": "vendor name or empty",
  "year": "YYYY, YYYY-MM or empty",
  "limit": null or a positive integer,        // null unless the user asks for a number
  "sort_by": "date" | "severity" | "none",
  "ransomware": true | false,
  "zero_day": true | false
}
If the user asks for all or every result, limit must be null.
A time window such as "last 30 days" is not a limit: use sort_by "date" and leave limit null.`

// llmIntent is the wire shape the model is asked to produce.
type llmIntent struct {
	Sources    []string `json:"sources"`
	Keywords   []string `json:"keywords"`
	Vendor     string   `json:"vendor"`
	Year       string   `json:"year"`
	Limit      *int     `json:"limit"`
	SortBy     string   `json:"sort_by"`
	Ransomware bool     `json:"ransomware"`
	ZeroDay    bool     `json:"zero_day"`
}

// errMalformedIntent marks a completion that is not a usable intent.
var errMalformedIntent = errors.New("malformed intent")

// LLMResolver asks a language model for the intent and falls back to the
// keyword resolver when the call fails or the answer does not parse.
type LLMResolver struct {
	completer ports.Completer
	fallback  ports.IntentResolver
}

// NewLLMResolver creates an LLMResolver. fallback is mandatory.
func NewLLMResolver(completer ports.Completer, fallback ports.IntentResolver) *LLMResolver {
	return &LLMResolver{completer: completer, fallback: fallback}
}

// Resolve implements ports.IntentResolver.
func (r *LLMResolver) Resolve(ctx context.Context, query string) (domain.QueryIntent, error) {
	if strings.TrimSpace(query) == "" {
		telemetry.IntentResolutions.WithLabelValues(StrategyLLM, "error").Inc()
		return domain.QueryIntent{}, fmt.Errorf("%w: %w", domain.ErrIntentResolutionFailed, domain.ErrEmptyQuery)
	}

	intent, err := r.resolve(ctx, query)
	if err == nil {
		telemetry.IntentResolutions.WithLabelValues(StrategyLLM, "ok").Inc()
		return intent, nil
	}

	telemetry.IntentResolutions.WithLabelValues(StrategyLLM, "fallback").Inc()
	slog.Warn("llm intent resolution failed, using keyword rules", "error", err)
	return r.fallback.Resolve(ctx, query)
}

func (r *LLMResolver) resolve(ctx context.Context, query string) (domain.QueryIntent, error) {
	if r.completer == nil {
		return domain.QueryIntent{}, fmt.Errorf("%w: no completer configured", domain.ErrIntentResolutionFailed)
	}

	raw, err := r.completer.Complete(ctx, SystemPrompt, query)
	if err != nil {
		return domain.QueryIntent{}, fmt.Errorf("%w: %w", domain.ErrIntentResolutionFailed, err)
	}

	parsed, err := parseIntentJSON(raw)
	if err != nil {
		return domain.QueryIntent{}, fmt.Errorf("%w: %w", domain.ErrIntentResolutionFailed, err)
	}

	intent := sanitize(parsed)
	if HasUnboundedToken(query) {
		intent.Limit = nil
	}
	if err := intent.Validate(); err != nil {
		return domain.QueryIntent{}, fmt.Errorf("%w: %w", errMalformedIntent, err)
	}
	return intent, nil
}

// parseIntentJSON extracts the first JSON object from a completion, ignoring
// markdown fences and surrounding prose.
func parseIntentJSON(raw string) (llmIntent, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return llmIntent{}, fmt.Errorf("%w: no JSON object in completion", errMalformedIntent)
	}

	var out llmIntent
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return llmIntent{}, fmt.Errorf("%w: %w", errMalformedIntent, err)
	}
	return out, nil
}

func sanitize(in llmIntent) domain.QueryIntent {
	intent := domain.NewQueryIntent()
	intent.Strategy = StrategyLLM

	var named []domain.Source
	for _, name := range in.Sources {
		if s, ok := domain.ParseSource(name); ok && !containsSource(named, s) {
			named = append(named, s)
		}
	}
	if len(named) > 0 {
		intent.Sources = orderByPrecedence(named)
	}

	var keywords []string
	for _, kw := range in.Keywords {
		keywords = append(keywords, domain.Fold(strings.TrimSpace(kw)))
	}
	intent.Keywords = dedupe(keywords)

	intent.VendorFilter = strings.TrimSpace(in.Vendor)

	year := strings.TrimSpace(in.Year)
	if (domain.RecordFilter{Year: year}).Validate() == nil {
		intent.YearFilter = year
	}

	if in.Limit != nil && *in.Limit > 0 {
		n := *in.Limit
		intent.Limit = &n
	}

	intent.SortBy = domain.ParseSortBy(in.SortBy)
	intent.Ransomware = in.Ransomware
	intent.ZeroDay = in.ZeroDay
	return intent
}
