package scores

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// DefaultEPSSURL is the FIRST EPSS API endpoint.
const DefaultEPSSURL = "https://api.first.org/data/v1/epss"

// MaxEPSSBatch is the largest id list sent in one request.
const MaxEPSSBatch = 100

type epssResponse struct {
	Status string      `json:"status"`
	Total  int         `json:"total"`
	Data   []epssEntry `json:"data"`
}

// EPSS answers carry numbers as strings, e.g. "0.00043".
type epssEntry struct {
	CVE        string `json:"cve"`
	EPSS       string `json:"epss"`
	Percentile string `json:"percentile"`
	Date       string `json:"date"`
}

// EPSSClient resolves exploit probabilities through FIRST EPSS.
type EPSSClient struct {
	client
}

// NewEPSSClient creates an exploit provider backed by FIRST EPSS.
func NewEPSSClient(opts ...Option) *EPSSClient {
	return &EPSSClient{client: newClient(DefaultEPSSURL, opts)}
}

// LookupExploit implements ports.ExploitProvider.
func (c *EPSSClient) LookupExploit(ctx context.Context, cveID string) (domain.ExploitScore, error) {
	scores, err := c.query(ctx, []string{cveID})
	if err != nil {
		return domain.ExploitScore{}, &domain.LookupError{Provider: "epss", CVE: cveID, Err: err}
	}
	s, ok := scores[cveID]
	if !ok {
		return domain.ExploitScore{}, domain.ErrScoreNotFound
	}
	return s, nil
}

// LookupExploitBatch implements ports.BatchExploitProvider. Ids are sent in
// chunks of MaxEPSSBatch; ids absent from the answer have no score.
func (c *EPSSClient) LookupExploitBatch(ctx context.Context, cveIDs []string) (map[string]domain.ExploitScore, error) {
	out := make(map[string]domain.ExploitScore, len(cveIDs))
	for start := 0; start < len(cveIDs); start += MaxEPSSBatch {
		end := start + MaxEPSSBatch
		if end > len(cveIDs) {
			end = len(cveIDs)
		}
		chunk, err := c.query(ctx, cveIDs[start:end])
		if err != nil {
			return out, &domain.LookupError{Provider: "epss", CVE: strings.Join(cveIDs[start:end], ","), Err: err}
		}
		for id, s := range chunk {
			out[id] = s
		}
	}
	return out, nil
}

func (c *EPSSClient) query(ctx context.Context, ids []string) (map[string]domain.ExploitScore, error) {
	u := fmt.Sprintf("%s?cve=%s", c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	var resp epssResponse
	if err := upstream.GetJSON(ctx, c.httpClient, u, nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]domain.ExploitScore, len(resp.Data))
	for _, e := range resp.Data {
		p, err := strconv.ParseFloat(e.EPSS, 64)
		if err != nil {
			continue
		}
		pct, _ := strconv.ParseFloat(e.Percentile, 64)
		out[e.CVE] = domain.ExploitScore{
			Probability: p * 100,
			Percentile:  pct * 100,
		}
	}
	return out, nil
}
