package scores

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

func TestCVSSClient_LookupSeverity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CVE-2021-44228", r.URL.Query().Get("cveId"))
		assert.Equal(t, "k", r.Header.Get("apiKey"))
		w.Write([]byte(`{"totalResults":1,"vulnerabilities":[{"cve":{"id":"CVE-2021-44228",
		  "metrics":{"cvssMetricV30":[{"type":"Primary","cvssData":{"version":"3.0","baseScore":10.0,"baseSeverity":"CRITICAL"}}],
		             "cvssMetricV2":[{"type":"Primary","cvssData":{"version":"2.0","baseScore":9.3},"baseSeverity":"HIGH"}]},
		  "weaknesses":[{"description":[{"lang":"en","value":"CWE-502"}]}]}}]}`))
	}))
	defer server.Close()

	c := NewCVSSClient(WithBaseURL(server.URL), WithAPIKey("k"))
	s, err := c.LookupSeverity(context.Background(), "CVE-2021-44228")
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Score)
	assert.Equal(t, "CRITICAL", s.Severity)
	assert.Equal(t, "3.0", s.Version)
	assert.Equal(t, "CWE-502", s.CWE)
}

func TestCVSSClient_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"empty result", http.StatusOK, `{"totalResults":0,"vulnerabilities":[]}`},
		{"no metrics", http.StatusOK, `{"vulnerabilities":[{"cve":{"id":"CVE-2024-0001","metrics":{}}}]}`},
		{"404", http.StatusNotFound, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			_, err := NewCVSSClient(WithBaseURL(server.URL)).LookupSeverity(context.Background(), "CVE-2024-0001")
			assert.ErrorIs(t, err, domain.ErrScoreNotFound)
		})
	}
}

func TestCVSSClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewCVSSClient(WithBaseURL(server.URL)).LookupSeverity(context.Background(), "CVE-2024-0001")
	assert.ErrorIs(t, err, domain.ErrEnrichmentLookupFailed)
	assert.NotErrorIs(t, err, domain.ErrScoreNotFound)
}

func TestEPSSClient_LookupExploit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CVE-2023-4966", r.URL.Query().Get("cve"))
		w.Write([]byte(`{"status":"OK","total":1,"data":[{"cve":"CVE-2023-4966","epss":"0.96500","percentile":"0.99800","date":"2024-06-01"}]}`))
	}))
	defer server.Close()

	s, err := NewEPSSClient(WithBaseURL(server.URL)).LookupExploit(context.Background(), "CVE-2023-4966")
	require.NoError(t, err)
	assert.InDelta(t, 96.5, s.Probability, 1e-9)
	assert.InDelta(t, 99.8, s.Percentile, 1e-9)
}

func TestEPSSClient_LookupExploitMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","total":0,"data":[]}`))
	}))
	defer server.Close()

	_, err := NewEPSSClient(WithBaseURL(server.URL)).LookupExploit(context.Background(), "CVE-2099-0001")
	assert.ErrorIs(t, err, domain.ErrScoreNotFound)
}

func TestEPSSClient_BatchChunks(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		ids := strings.Split(r.URL.Query().Get("cve"), ",")
		assert.LessOrEqual(t, len(ids), MaxEPSSBatch)

		var entries []string
		for _, id := range ids {
			entries = append(entries, fmt.Sprintf(`{"cve":%q,"epss":"0.5","percentile":"0.5"}`, id))
		}
		fmt.Fprintf(w, `{"status":"OK","data":[%s]}`, strings.Join(entries, ","))
	}))
	defer server.Close()

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("CVE-2024-%04d", i)
	}

	out, err := NewEPSSClient(WithBaseURL(server.URL)).LookupExploitBatch(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, out, 150)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 50.0, out["CVE-2024-0149"].Probability)
}

func TestWithTimeoutCopiesClient(t *testing.T) {
	shared := &http.Client{}
	c := newClient("", []Option{WithHTTPClient(shared), WithTimeout(3 * time.Second)})

	assert.Zero(t, shared.Timeout)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
}
