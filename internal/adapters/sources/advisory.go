package sources

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// DefaultAdvisoryURL is the Zero Day Initiative published-advisories feed.
const DefaultAdvisoryURL = "https://www.zerodayinitiative.com/rss/published/"

// FallbackAdvisoryScore is assigned when no severity keyword matches.
const FallbackAdvisoryScore = 6.5

// severityKeywords is scanned against the item title; the highest match wins.
var severityKeywords = []struct {
	keyword string
	score   float64
}{
	{"zero-day", 9.5},
	{"0-day", 9.5},
	{"actively exploited", 9.5},
	{"critical", 9.0},
	{"remote code execution", 9.0},
	{"rce", 9.0},
	{"authentication bypass", 8.5},
	{"command injection", 8.5},
	{"sql injection", 8.0},
	{"privilege escalation", 7.8},
	{"arbitrary file", 7.5},
	{"high", 7.5},
	{"deserialization", 7.5},
	{"denial of service", 6.0},
	{"information disclosure", 5.5},
	{"cross-site scripting", 5.4},
	{"xss", 5.4},
	{"medium", 5.0},
	{"low", 3.0},
}

var (
	cvePattern      = regexp.MustCompile(`CVE-\d{4}-\d{4,}`)
	advisoryIDRegex = regexp.MustCompile(`\b[A-Z]{2,6}-\d{2}-\d{2,}\b`)
	cvssPattern     = regexp.MustCompile(`(?i)CVSS(?:v3(?:\.\d)?)?\s+(?:base\s+)?(?:score|rating)\s+of\s+(\d{1,2}(?:\.\d)?)`)
)

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	time.DateOnly,
}

type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// AdvisoryFetcher reads a research advisory RSS feed.
type AdvisoryFetcher struct {
	settings
	expandArticles int
}

// AdvisoryOption configures feed-specific behaviour.
type AdvisoryOption func(*AdvisoryFetcher)

// WithArticleExpansion fetches the linked page for up to n items that ship
// without a description and uses its readable text instead.
func WithArticleExpansion(n int) AdvisoryOption {
	return func(f *AdvisoryFetcher) {
		f.expandArticles = n
	}
}

// NewAdvisoryFetcher creates a feed fetcher.
func NewAdvisoryFetcher(opts []Option, advOpts ...AdvisoryOption) *AdvisoryFetcher {
	f := &AdvisoryFetcher{settings: newSettings(DefaultAdvisoryURL, opts)}
	for _, opt := range advOpts {
		opt(f)
	}
	return f
}

// Name implements ports.SourceFetcher.
func (f *AdvisoryFetcher) Name() domain.Source {
	return domain.SourceAdvisoryFeed
}

// Fetch returns feed items published within the last windowDays.
func (f *AdvisoryFetcher) Fetch(ctx context.Context, windowDays int) ([]domain.VulnerabilityRecord, error) {
	body, err := upstream.Get(ctx, f.httpClient, f.baseURL, nil)
	if err != nil {
		return nil, &domain.SourceError{Source: f.Name(), Op: "fetch", Err: err}
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, &domain.SourceError{Source: f.Name(), Op: "decode", Err: err}
	}

	start, bounded := windowStart(f.now(), windowDays)
	cutoff := start.Format(time.DateOnly)

	expanded := 0
	records := make([]domain.VulnerabilityRecord, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		r, ok := itemToRecord(item)
		if !ok {
			continue
		}
		if bounded && r.DateAdded != "" && r.DateAdded < cutoff {
			continue
		}

		if r.ShortDescription == "" && item.Link != "" && expanded < f.expandArticles {
			expanded++
			if text, err := f.articleText(ctx, item.Link); err != nil {
				slog.Debug("advisory article expansion failed", "link", item.Link, "error", err)
			} else {
				r.ShortDescription = text
			}
		}

		records = append(records, r)
	}
	return records, nil
}

func itemToRecord(item rssItem) (domain.VulnerabilityRecord, bool) {
	title := strings.TrimSpace(stripHTML(item.Title))
	link := strings.TrimSpace(item.Link)
	if title == "" && link == "" {
		return domain.VulnerabilityRecord{}, false
	}

	desc := stripHTML(item.Description)
	text := title + " " + desc

	r := domain.NewRecord(advisoryID(item, text), domain.SourceAdvisoryFeed)
	r.Title = title
	r.ShortDescription = desc
	r.Link = link
	r.DateAdded = parsePubDate(item.PubDate)
	if vendor, ok := domain.DetectVendor(title); ok {
		r.Vendor = vendor
	}
	r.SetSeverity(estimateScore(title, desc))
	return r, true
}

// advisoryID prefers a CVE id, then an advisory id such as ZDI-24-1234,
// then a stable digest of the link or guid.
func advisoryID(item rssItem, text string) string {
	if id := cvePattern.FindString(text); id != "" {
		return id
	}
	if id := advisoryIDRegex.FindString(item.Title); id != "" {
		return id
	}
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title
	}
	sum := sha1.Sum([]byte(key))
	return "ADV-" + strings.ToUpper(hex.EncodeToString(sum[:6]))
}

// estimateScore uses a score stated in the description, else the highest
// severity keyword found in the title, else FallbackAdvisoryScore.
func estimateScore(title, desc string) float64 {
	if m := cvssPattern.FindStringSubmatch(desc); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 10 {
			return v
		}
	}

	padded := " " + domain.NormalizeWords(title) + " "
	best := 0.0
	for _, k := range severityKeywords {
		if strings.Contains(padded, " "+k.keyword+" ") && k.score > best {
			best = k.score
		}
	}
	if best == 0 {
		return FallbackAdvisoryScore
	}
	return best
}

func parsePubDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.DateOnly)
		}
	}
	return ""
}

// stripHTML returns the text content of an HTML fragment with whitespace collapsed.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

func (f *AdvisoryFetcher) articleText(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", link)
	}

	body, err := upstream.Get(ctx, f.httpClient, link, nil)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}
	return strings.Join(strings.Fields(article.TextContent), " "), nil
}
