package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// StrategyKeyword names the deterministic resolver.
const StrategyKeyword = "keyword"

var sourceTerms = []struct {
	phrase string
	source domain.Source
}{
	{"known exploited", domain.SourceExploitedCatalog},
	{"exploited catalog", domain.SourceExploitedCatalog},
	{"exploited vulnerabilities catalog", domain.SourceExploitedCatalog},
	{"actively exploited", domain.SourceExploitedCatalog},
	{"kev", domain.SourceExploitedCatalog},
	{"kevs", domain.SourceExploitedCatalog},
	{"cisa", domain.SourceExploitedCatalog},
	{"zero day initiative", domain.SourceAdvisoryFeed},
	{"zero-day initiative", domain.SourceAdvisoryFeed},
	{"advisory feed", domain.SourceAdvisoryFeed},
	{"zdi", domain.SourceAdvisoryFeed},
	{"advisory", domain.SourceAdvisoryFeed},
	{"advisories", domain.SourceAdvisoryFeed},
	{"rss", domain.SourceAdvisoryFeed},
	{"national vulnerability database", domain.SourceVulnerabilityDatabase},
	{"vulnerability database", domain.SourceVulnerabilityDatabase},
	{"vulnerabilities database", domain.SourceVulnerabilityDatabase},
	{"nvd", domain.SourceVulnerabilityDatabase},
	{"nist", domain.SourceVulnerabilityDatabase},
}

// techniqueTerms expand a recognised attack class into the keywords matched
// against record text.
var techniqueTerms = []struct {
	phrase   string
	keywords []string
}{
	{"remote code execution", []string{"remote code execution", "rce"}},
	{"rce", []string{"remote code execution", "rce"}},
	{"code execution", []string{"code execution"}},
	{"sql injection", []string{"sql injection"}},
	{"sqli", []string{"sql injection"}},
	{"command injection", []string{"command injection"}},
	{"cross-site scripting", []string{"cross-site scripting", "xss"}},
	{"cross site scripting", []string{"cross-site scripting", "xss"}},
	{"xss", []string{"cross-site scripting", "xss"}},
	{"privilege escalation", []string{"privilege escalation", "elevation of privilege"}},
	{"elevation of privilege", []string{"privilege escalation", "elevation of privilege"}},
	{"authentication bypass", []string{"authentication bypass"}},
	{"auth bypass", []string{"authentication bypass"}},
	{"buffer overflow", []string{"buffer overflow"}},
	{"use-after-free", []string{"use-after-free", "use after free"}},
	{"use after free", []string{"use-after-free", "use after free"}},
	{"path traversal", []string{"path traversal", "directory traversal"}},
	{"directory traversal", []string{"path traversal", "directory traversal"}},
	{"deserialization", []string{"deserialization"}},
	{"denial of service", []string{"denial of service"}},
	{"ssrf", []string{"server-side request forgery", "ssrf"}},
}

var zeroDayTerms = []string{"zero-day", "zero day", "0-day", "0day", "zeroday"}

var zeroDayKeywords = []string{"zero-day", "zero day", "0-day"}

var ransomwareTerms = []string{"ransomware", "ransom"}

var unboundedTerms = []string{"all", "every", "entire"}

var recencyTerms = []string{"recent", "recently", "latest", "newest", "new", "today", "this week", "this month", "last week"}

var severityTerms = []string{"critical", "severe", "most severe", "highest", "worst", "dangerous", "riskiest"}

var months = map[string]int{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may":  5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

// stopWords are dropped before leftover tokens become keywords.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "any": true, "are": true, "about": true, "as": true,
	"at": true, "be": true, "by": true, "can": true, "cve": true, "cves": true, "do": true,
	"does": true, "for": true, "from": true, "get": true, "give": true, "have": true, "how": true,
	"i": true, "in": true, "is": true, "it": true, "items": true, "list": true, "me": true,
	"many": true, "more": true, "most": true, "my": true, "of": true, "on": true, "or": true,
	"our": true, "please": true, "records": true, "related": true, "results": true, "show": true,
	"tell": true, "that": true, "the": true, "there": true, "these": true, "this": true,
	"to": true, "top": true, "us": true, "vuln": true, "vulns": true, "vulnerabilities": true,
	"vulnerability": true, "vulnerable": true, "what": true, "which": true, "with": true,
	"were": true, "was": true, "we": true, "you": true, "your": true, "affecting": true,
	"added": true, "published": true, "disclosed": true, "exploited": true, "known": true,
	"catalog": true, "feed": true, "database": true, "entries": true, "first": true, "last": true,
	"week": true, "month": true, "year": true, "since": true, "issues": true, "flaws": true,
	"bugs": true, "security": true, "did": true, "add": true, "new": true, "high": true, "severity": true, "priority": true,
	"past": true, "previous": true, "day": true, "days": true, "weeks": true, "months": true, "years": true,
}

var (
	yearPattern    = regexp.MustCompile(`^(19|20)\d{2}$`)
	numberPattern  = regexp.MustCompile(`^\d{1,4}$`)
	windowPattern  = regexp.MustCompile(`\b(?:last|past|previous)\s+(?:(\d{1,4})\s+)?(days?|weeks?|months?|years?)\b`)
	topNPattern    = regexp.MustCompile(`\b(?:top|first|latest|last)\s+(\d{1,4})\b`)
	showMePattern  = regexp.MustCompile(`\b(?:show|give|get|list|find)\s+(?:me\s+)?(\d{1,4})\b`)
	nItemsPattern  = regexp.MustCompile(`\b(\d{1,4})\s+(?:items?|results?|vulnerabilit(?:y|ies)|vulns?|cves?|records?|entries|advisories|kevs?)\b`)
	cveTokenPrefix = "cve-"
)

// KeywordResolver builds an intent from fixed vocabulary rules. It never
// fails on a non-blank query.
type KeywordResolver struct {
	now func() time.Time
}

// NewKeywordResolver creates a KeywordResolver. now supplies the year used
// for month names without a year; nil means time.Now.
func NewKeywordResolver(now func() time.Time) *KeywordResolver {
	if now == nil {
		now = time.Now
	}
	return &KeywordResolver{now: now}
}

// Resolve implements ports.IntentResolver.
func (r *KeywordResolver) Resolve(_ context.Context, query string) (domain.QueryIntent, error) {
	if strings.TrimSpace(query) == "" {
		telemetry.IntentResolutions.WithLabelValues(StrategyKeyword, "error").Inc()
		return domain.QueryIntent{}, fmt.Errorf("%w: %w", domain.ErrIntentResolutionFailed, domain.ErrEmptyQuery)
	}

	text := " " + domain.NormalizeWords(query) + " "
	consumed := make(map[string]bool)
	intent := domain.NewQueryIntent()
	intent.Strategy = StrategyKeyword

	// sources
	var named []domain.Source
	for _, t := range sourceTerms {
		if hasPhrase(text, t.phrase) {
			markConsumed(consumed, t.phrase)
			if !containsSource(named, t.source) {
				named = append(named, t.source)
			}
		}
	}
	if len(named) > 0 {
		intent.Sources = orderByPrecedence(named)
	}

	// flags
	for _, t := range ransomwareTerms {
		if hasPhrase(text, t) {
			intent.Ransomware = true
			markConsumed(consumed, t)
		}
	}
	for _, t := range zeroDayTerms {
		// "zero day" inside "zero day initiative" names the feed
		if hasPhrase(text, t) && !allConsumed(consumed, t) {
			intent.ZeroDay = true
			markConsumed(consumed, t)
		}
	}
	for _, tok := range strings.Fields(text) {
		if consumed[tok] {
			continue
		}
		if inCompound(tok, ransomwareTerms) {
			intent.Ransomware = true
			consumed[tok] = true
		}
		if inCompound(tok, zeroDayTerms) {
			intent.ZeroDay = true
			consumed[tok] = true
		}
	}

	var keywords []string
	if intent.ZeroDay {
		keywords = append(keywords, zeroDayKeywords...)
	}
	for _, t := range techniqueTerms {
		// "code execution" inside "remote code execution" adds nothing
		if hasPhrase(text, t.phrase) && !allConsumed(consumed, t.phrase) {
			markConsumed(consumed, t.phrase)
			keywords = append(keywords, t.keywords...)
		}
	}

	// vendor
	if vendor, ok := domain.DetectVendor(query); ok {
		intent.VendorFilter = vendor
	}

	// sort
	for _, t := range recencyTerms {
		if hasPhrase(text, t) {
			intent.SortBy = domain.SortByDate
			markConsumed(consumed, t)
		}
	}
	for _, t := range severityTerms {
		if hasPhrase(text, t) {
			markConsumed(consumed, t)
			// recency wins when both are asked for
			if intent.SortBy == domain.SortByNone {
				intent.SortBy = domain.SortBySeverity
			}
		}
	}

	// "last 30 days" bounds the dates; it only orders by date when nothing else did
	if since, ok := r.window(text); ok {
		intent.AddedSince = since
		if intent.SortBy == domain.SortByNone {
			intent.SortBy = domain.SortByDate
		}
	}

	intent.YearFilter = r.dateFilter(strings.Fields(text), consumed)
	intent.Limit = ParseLimit(query)

	for _, tok := range strings.Fields(text) {
		if isLeftoverKeyword(tok, consumed) {
			keywords = append(keywords, tok)
		}
	}
	intent.Keywords = dedupe(keywords)

	telemetry.IntentResolutions.WithLabelValues(StrategyKeyword, "ok").Inc()
	return intent, nil
}

// window reads "last/past N <unit>" as a DateAdded cutoff. A missing N means one.
func (r *KeywordResolver) window(text string) (string, bool) {
	m := windowPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	n := 1
	if m[1] != "" {
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return "", false
		}
		n = v
	}

	now := r.now()
	var since time.Time
	switch strings.TrimSuffix(m[2], "s") {
	case "day":
		since = now.AddDate(0, 0, -n)
	case "week":
		since = now.AddDate(0, 0, -7*n)
	case "month":
		since = now.AddDate(0, -n, 0)
	default:
		since = now.AddDate(-n, 0, 0)
	}
	return since.Format(time.DateOnly), true
}

// ParseLimit extracts the result cap from free text. An "all", "every" or
// "entire" token always wins and yields nil, as does the absence of a number.
// A time window such as "last 30 days" is not a count.
func ParseLimit(query string) *int {
	text := domain.NormalizeWords(query)
	if HasUnboundedToken(text) {
		return nil
	}
	text = windowPattern.ReplaceAllString(text, " ")
	for _, p := range []*regexp.Regexp{topNPattern, showMePattern, nItemsPattern} {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 || yearPattern.MatchString(m[1]) {
			continue
		}
		return &n
	}
	return nil
}

// HasUnboundedToken reports whether text asks for every result.
func HasUnboundedToken(text string) bool {
	padded := " " + domain.NormalizeWords(text) + " "
	for _, t := range unboundedTerms {
		if hasPhrase(padded, t) {
			return true
		}
	}
	return false
}

// dateFilter turns month and year tokens into a DateAdded prefix.
func (r *KeywordResolver) dateFilter(tokens []string, consumed map[string]bool) string {
	year, month := "", 0
	for _, tok := range tokens {
		if yearPattern.MatchString(tok) && year == "" {
			year = tok
			consumed[tok] = true
			continue
		}
		if m, ok := months[tok]; ok && month == 0 {
			// "may" and "mar" only count next to a year
			if (tok == "may" || tok == "mar") && !hasYear(tokens) {
				continue
			}
			month = m
			consumed[tok] = true
		}
	}

	switch {
	case year != "" && month > 0:
		return fmt.Sprintf("%s-%02d", year, month)
	case year != "":
		return year
	case month > 0:
		return fmt.Sprintf("%04d-%02d", r.now().Year(), month)
	}
	return ""
}

func hasYear(tokens []string) bool {
	for _, t := range tokens {
		if yearPattern.MatchString(t) {
			return true
		}
	}
	return false
}

func isLeftoverKeyword(tok string, consumed map[string]bool) bool {
	if consumed[tok] || stopWords[tok] || len(tok) < 3 {
		return false
	}
	if numberPattern.MatchString(tok) || domain.IsVendorAlias(tok) {
		return false
	}
	if _, month := months[tok]; month {
		return false
	}
	for _, t := range unboundedTerms {
		if tok == t {
			return false
		}
	}
	// a CVE id is matched by id lookups, not by text search
	return !strings.HasPrefix(tok, cveTokenPrefix)
}

// inCompound reports whether a hyphenated token such as "ransomware-related"
// contains one of terms as whole words.
func inCompound(tok string, terms []string) bool {
	if !strings.Contains(tok, "-") {
		return false
	}
	padded := " " + strings.ReplaceAll(tok, "-", " ") + " "
	for _, t := range terms {
		if hasPhrase(padded, strings.ReplaceAll(t, "-", " ")) {
			return true
		}
	}
	return false
}

func hasPhrase(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

func allConsumed(consumed map[string]bool, phrase string) bool {
	for _, w := range strings.Fields(phrase) {
		if !consumed[w] {
			return false
		}
	}
	return true
}

func markConsumed(consumed map[string]bool, phrase string) {
	for _, w := range strings.Fields(phrase) {
		consumed[w] = true
	}
}

func containsSource(list []domain.Source, s domain.Source) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func orderByPrecedence(named []domain.Source) []domain.Source {
	out := make([]domain.Source, 0, len(named))
	for _, s := range domain.AllSources {
		if containsSource(named, s) {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
