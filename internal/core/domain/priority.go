package domain

// SeverityBand is the categorical label derived from a severity score.
type SeverityBand string

const (
	BandCritical SeverityBand = "CRITICAL"
	BandHigh     SeverityBand = "HIGH"
	BandMedium   SeverityBand = "MEDIUM"
	BandLow      SeverityBand = "LOW"
	BandUnknown  SeverityBand = "UNKNOWN"
)

// PriorityLabel is the triage category combining severity and exploit probability.
type PriorityLabel string

const (
	PriorityUrgent  PriorityLabel = "URGENT"
	PriorityHigh    PriorityLabel = "HIGH"
	PriorityMedium  PriorityLabel = "MEDIUM"
	PriorityLow     PriorityLabel = "LOW"
	PriorityUnknown PriorityLabel = "UNKNOWN"
)

// Priority thresholds on the 0-10 severity scale.
const (
	UrgentThreshold = 9.0
	HighThreshold   = 7.0
	MediumThreshold = 4.0

	// ExploitTieBreak is the exploit probability (0-100) that qualifies a
	// critical score as urgent. Every score at or above UrgentThreshold is
	// already urgent, so it never changes the outcome.
	ExploitTieBreak = 10.0
)

// BandFor maps a severity score onto its CVSS band.
func BandFor(score *float64) SeverityBand {
	if score == nil {
		return BandUnknown
	}
	switch s := *score; {
	case s >= UrgentThreshold:
		return BandCritical
	case s >= HighThreshold:
		return BandHigh
	case s >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// ComputePriority derives the priority label. It is a pure function of its
// inputs so a label can always be re-derived from stored scores.
func ComputePriority(severity, exploit *float64) PriorityLabel {
	if severity == nil {
		return PriorityUnknown
	}
	s := *severity
	if s >= UrgentThreshold {
		return PriorityUrgent
	}
	if s >= HighThreshold {
		return PriorityHigh
	}
	if s >= MediumThreshold {
		return PriorityMedium
	}
	return PriorityLow
}

// Rank orders priority labels for sorting. Higher is more pressing.
func (p PriorityLabel) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}
