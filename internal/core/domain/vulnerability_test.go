package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecordDefaults(t *testing.T) {
	r := NewRecord("CVE-2023-1234", SourceAdvisoryFeed)
	assert.Equal(t, UnknownVendor, r.Vendor)
	assert.Equal(t, VariousProduct, r.Product)
	assert.True(t, r.HasPlaceholderVendor())
	assert.True(t, r.HasPlaceholderProduct())
	assert.Equal(t, BandUnknown, r.SeverityBand)
	assert.Equal(t, PriorityUnknown, r.PriorityLabel)
}

func TestSetSeverityClampsAndRefreshes(t *testing.T) {
	r := NewRecord("CVE-2023-1234", SourceVulnerabilityDatabase)
	r.SetSeverity(12)
	assert.Equal(t, 10.0, *r.SeverityScore)
	assert.Equal(t, BandCritical, r.SeverityBand)
	assert.Equal(t, PriorityUrgent, r.PriorityLabel)

	r.SetExploit(-5)
	assert.Equal(t, 0.0, *r.ExploitProbability)
}

func TestCloneDoesNotShareScores(t *testing.T) {
	r := NewRecord("CVE-2023-1234", SourceVulnerabilityDatabase)
	r.SetSeverity(5)
	c := r.Clone()
	*c.SeverityScore = 9

	assert.Equal(t, 5.0, *r.SeverityScore)
}

func TestParseSource(t *testing.T) {
	s, ok := ParseSource("KEVs")
	assert.True(t, ok)
	assert.Equal(t, SourceExploitedCatalog, s)

	_, ok = ParseSource("twitter")
	assert.False(t, ok)
}

func TestSourcePrecedence(t *testing.T) {
	assert.Less(t, SourceExploitedCatalog.Precedence(), SourceAdvisoryFeed.Precedence())
	assert.Less(t, SourceAdvisoryFeed.Precedence(), SourceVulnerabilityDatabase.Precedence())
	assert.False(t, Source("bogus").Valid())
}

func TestErrorTaxonomy(t *testing.T) {
	srcErr := fmt.Errorf("wrapped: %w", &SourceError{Source: SourceVulnerabilityDatabase, Op: "fetch", Err: errors.New("timeout")})
	assert.ErrorIs(t, srcErr, ErrSourceUnavailable)

	var se *SourceError
	assert.True(t, errors.As(srcErr, &se))
	assert.Equal(t, SourceVulnerabilityDatabase, se.Source)

	lookupErr := &LookupError{Provider: "epss", CVE: "CVE-1", Err: ErrScoreNotFound}
	assert.ErrorIs(t, lookupErr, ErrEnrichmentLookupFailed)
	assert.ErrorIs(t, lookupErr, ErrScoreNotFound)
}

func TestIntentValidate(t *testing.T) {
	assert.NoError(t, NewQueryIntent().Validate())
	assert.Error(t, NewQueryIntent().WithSources().Validate())
	assert.Error(t, NewQueryIntent().WithLimit(0).Validate())
	assert.Error(t, NewQueryIntent().WithSources("bogus").Validate())
	assert.Error(t, NewQueryIntent().WithSort("random").Validate())
}

func TestSummarizeAndPercent(t *testing.T) {
	a := NewRecord("CVE-1", SourceExploitedCatalog)
	a.SetSeverity(9)
	a.CWE = "CWE-79"
	a.RansomwareAssociated = true
	b := NewRecord("CVE-2", SourceExploitedCatalog)

	s := Summarize(SourceExploitedCatalog, []VulnerabilityRecord{a, b})
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, 1, s.WithSeverity)
	assert.Equal(t, 1, s.WithCWE)
	assert.Equal(t, 1, s.Ransomware)

	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 0.0, Percent(1, 0))
}
