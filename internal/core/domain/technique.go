package domain

import (
	"sort"
	"strings"
)

// Technique is one MITRE ATT&CK Enterprise technique or sub-technique.
type Technique struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Tactics      []string `json:"tactics"`
	Platforms    []string `json:"platforms,omitempty"`
	Subtechnique bool     `json:"subtechnique"`
	URL          string   `json:"url"`
}

// SearchText is the text keyword matching runs against.
func (t Technique) SearchText() string {
	return t.ID + " " + t.Name + " " + strings.Join(t.Tactics, " ") + " " + t.Description
}

// TechniqueStats counts what the ATT&CK catalog holds.
type TechniqueStats struct {
	Loaded        bool `json:"loaded"`
	Techniques    int  `json:"total"`
	Subtechniques int  `json:"subtechniques"`
	Tactics       int  `json:"tactics"`
}

// SummarizeTechniques counts techniques, sub-techniques and distinct tactics.
func SummarizeTechniques(techniques []Technique) TechniqueStats {
	s := TechniqueStats{Loaded: true, Techniques: len(techniques)}
	tactics := make(map[string]bool)
	for _, t := range techniques {
		if t.Subtechnique {
			s.Subtechniques++
		}
		for _, tactic := range t.Tactics {
			tactics[tactic] = true
		}
	}
	s.Tactics = len(tactics)
	return s
}

// MatchTechniques returns up to limit techniques mentioning any term, most
// matched terms first. A term found in the name counts twice. Ties keep
// catalog order. limit <= 0 means no cap.
func MatchTechniques(techniques []Technique, terms []string, limit int) []Technique {
	var folded []string
	for _, t := range terms {
		if t = Fold(strings.TrimSpace(t)); len(t) > 2 {
			folded = append(folded, t)
		}
	}
	if len(folded) == 0 {
		return nil
	}

	type hit struct {
		t     Technique
		score int
	}
	var hits []hit
	for _, t := range techniques {
		name, text := Fold(t.ID+" "+t.Name), Fold(t.SearchText())
		score := 0
		for _, term := range folded {
			if strings.Contains(name, term) {
				score += 2
			} else if strings.Contains(text, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{t, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Technique, len(hits))
	for i, h := range hits {
		out[i] = h.t
	}
	return out
}
