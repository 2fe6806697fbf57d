package attack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/cache"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

const testBundle = `{
  "type": "bundle",
  "objects": [
    {
      "type": "attack-pattern",
      "name": "Data Encrypted for Impact",
      "description": "Adversaries may encrypt data on target systems, as ransomware does.",
      "external_references": [
        {"source_name": "mitre-attack", "external_id": "T1486"},
        {"source_name": "capec", "external_id": "CAPEC-1"}
      ],
      "kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "impact"}],
      "x_mitre_platforms": ["Linux", "Windows"]
    },
    {
      "type": "attack-pattern",
      "name": "Exploit Public-Facing Application",
      "description": "Adversaries may exploit a weakness in an Internet-facing host.",
      "external_references": [{"source_name": "mitre-attack", "external_id": "T1190"}],
      "kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "initial-access"}],
      "x_mitre_platforms": ["Network"]
    },
    {
      "type": "attack-pattern",
      "name": "Spearphishing Attachment",
      "external_references": [{"source_name": "mitre-attack", "external_id": "T1566.001"}],
      "kill_chain_phases": [
        {"kill_chain_name": "mitre-attack", "phase_name": "initial-access"},
        {"kill_chain_name": "other-chain", "phase_name": "delivery"}
      ]
    },
    {
      "type": "attack-pattern",
      "name": "Revoked Technique",
      "revoked": true,
      "external_references": [{"source_name": "mitre-attack", "external_id": "T0001"}]
    },
    {
      "type": "attack-pattern",
      "name": "Deprecated Technique",
      "x_mitre_deprecated": true,
      "external_references": [{"source_name": "mitre-attack", "external_id": "T0002"}]
    },
    {
      "type": "attack-pattern",
      "name": "No Identifier",
      "external_references": [{"source_name": "capec", "external_id": "CAPEC-2"}]
    },
    {
      "type": "intrusion-set",
      "name": "APT28",
      "external_references": [{"source_name": "mitre-attack", "external_id": "G0007"}]
    }
  ]
}`

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func bundleServer(t *testing.T, calls *atomic.Int32, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if code := int(status.Load()); code != 0 && code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testBundle))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalog_ParsesLiveTechniques(t *testing.T) {
	var calls, status atomic.Int32
	srv := bundleServer(t, &calls, &status)

	c := NewCatalog(WithURL(srv.URL))
	techs, err := c.Techniques(context.Background())
	require.NoError(t, err)
	require.Len(t, techs, 3)

	assert.Equal(t, "T1486", techs[0].ID)
	assert.Equal(t, "Data Encrypted for Impact", techs[0].Name)
	assert.Equal(t, []string{"Impact"}, techs[0].Tactics)
	assert.Equal(t, []string{"Linux", "Windows"}, techs[0].Platforms)
	assert.False(t, techs[0].Subtechnique)
	assert.Equal(t, "https://attack.mitre.org/techniques/T1486/", techs[0].URL)

	assert.Equal(t, []string{"Initial Access"}, techs[1].Tactics)

	sub := techs[2]
	assert.Equal(t, "T1566.001", sub.ID)
	assert.True(t, sub.Subtechnique)
	assert.Equal(t, []string{"Initial Access"}, sub.Tactics, "phases of other kill chains are ignored")
	assert.Equal(t, "https://attack.mitre.org/techniques/T1566/001/", sub.URL)
}

func TestCatalog_CachesBundle(t *testing.T) {
	var calls, status atomic.Int32
	srv := bundleServer(t, &calls, &status)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}

	c := NewCatalog(
		WithURL(srv.URL),
		WithTTL(time.Hour),
		WithCache(cache.New[[]domain.Technique]("attack-test", cache.WithClock(clock))),
	)

	for i := 0; i < 3; i++ {
		_, err := c.Techniques(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(2 * time.Hour)
	_, err := c.Techniques(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "expired matrix is reloaded")
}

func TestCatalog_Search(t *testing.T) {
	var calls, status atomic.Int32
	srv := bundleServer(t, &calls, &status)

	c := NewCatalog(WithURL(srv.URL))
	techs, err := c.Search(context.Background(), []string{"ransomware"}, 5)
	require.NoError(t, err)
	require.Len(t, techs, 1)
	assert.Equal(t, "T1486", techs[0].ID)

	techs, err = c.Search(context.Background(), []string{"initial access"}, 1)
	require.NoError(t, err)
	assert.Len(t, techs, 1)
}

func TestCatalog_StatsDoesNotLoad(t *testing.T) {
	var calls, status atomic.Int32
	srv := bundleServer(t, &calls, &status)

	c := NewCatalog(WithURL(srv.URL))
	assert.Equal(t, domain.TechniqueStats{}, c.Stats())
	assert.Zero(t, calls.Load())

	require.NoError(t, c.Refresh(context.Background(), 90))
	assert.Equal(t, domain.TechniqueStats{
		Loaded:        true,
		Techniques:    3,
		Subtechniques: 1,
		Tactics:       2,
	}, c.Stats())
}

func TestCatalog_FailedLoad(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusBadGateway)
	srv := bundleServer(t, &calls, &status)

	c := NewCatalog(WithURL(srv.URL))
	_, err := c.Techniques(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTechniquesUnavailable)
	assert.False(t, c.Stats().Loaded)
}

func TestCatalog_RefreshKeepsMatrixOnFailure(t *testing.T) {
	var calls, status atomic.Int32
	srv := bundleServer(t, &calls, &status)

	c := NewCatalog(WithURL(srv.URL))
	require.NoError(t, c.Refresh(context.Background(), 0))

	status.Store(http.StatusServiceUnavailable)
	err := c.Refresh(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrTechniquesUnavailable)

	techs, err := c.Techniques(context.Background())
	require.NoError(t, err)
	assert.Len(t, techs, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWithTimeoutCopiesClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Second}
	c := NewCatalog(WithHTTPClient(shared), WithTimeout(5*time.Second))

	assert.Equal(t, time.Second, shared.Timeout)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
}
