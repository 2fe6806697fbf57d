package presentation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
)

// SystemPrompt frames the narrative model.
const SystemPrompt = `You are CyberIQ, a threat intelligence assistant.
You receive a user question and a list of vulnerability records selected for it.
Answer using only those records. For each vulnerability you discuss, mention:
1. CVSS score and severity, when known
2. CWE classification, when known
3. Whether CISA lists it as known exploited
4. Ransomware campaign usage, when known
5. Exploit probability (EPSS), when known
Keep the answer short and lead with the most urgent items.`

// LLMNarrator renders narratives with a language model and falls back to the
// plain summary when the model is unavailable.
type LLMNarrator struct {
	completer ports.Completer
	fallback  ports.NarrativeGenerator
}

// NewLLMNarrator creates an LLMNarrator. A nil completer always uses the
// plain summary.
func NewLLMNarrator(completer ports.Completer) *LLMNarrator {
	return &LLMNarrator{completer: completer, fallback: PlainNarrator{}}
}

// Generate implements ports.NarrativeGenerator.
func (n *LLMNarrator) Generate(ctx context.Context, req domain.NarrativeRequest) (string, error) {
	if n.completer == nil {
		return n.fallback.Generate(ctx, req)
	}

	text, err := n.completer.Complete(ctx, SystemPrompt, Prompt(req))
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("narrative generation failed, using plain summary", "error", err)
		return n.fallback.Generate(ctx, req)
	}
	return strings.TrimSpace(text), nil
}

// Prompt renders the user message sent to the model.
func Prompt(req domain.NarrativeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\n", req.Query)
	fmt.Fprintf(&b, "Matching records: %d (page %d of %d, %d shown)\n",
		req.Summary.TotalCount, req.CurrentPage, req.TotalPages, req.Summary.PageCount)
	if req.Summary.Ransomware > 0 {
		fmt.Fprintf(&b, "Ransomware-associated on this page: %d\n", req.Summary.Ransomware)
	}
	if len(req.ContextLines) == 0 {
		b.WriteString("\nNo records matched.\n")
	} else {
		b.WriteString("\nRelevant intelligence:\n")
		writeList(&b, req.ContextLines)
	}
	if len(req.Techniques) > 0 {
		b.WriteString("\nRelated ATT&CK techniques:\n")
		writeList(&b, req.Techniques)
	}
	return b.String()
}

func writeList(b *strings.Builder, lines []string) {
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// PlainNarrator renders a deterministic text summary.
type PlainNarrator struct{}

// Generate implements ports.NarrativeGenerator.
func (PlainNarrator) Generate(_ context.Context, req domain.NarrativeRequest) (string, error) {
	s := req.Summary
	var b strings.Builder
	if s.TotalCount == 0 {
		fmt.Fprintf(&b, "No vulnerabilities matched %q.", req.Query)
		writeTechniques(&b, req.Techniques)
		return b.String(), nil
	}

	fmt.Fprintf(&b, "Found %d vulnerabilities for %q", s.TotalCount, req.Query)
	if req.TotalPages > 1 {
		fmt.Fprintf(&b, " (page %d of %d)", req.CurrentPage, req.TotalPages)
	}
	b.WriteString(".")

	if parts := countParts(s.BySource, func(src domain.Source) string { return src.DisplayName() }); parts != "" {
		fmt.Fprintf(&b, " Sources on this page: %s.", parts)
	}

	var prio []string
	for _, p := range []domain.PriorityLabel{domain.PriorityUrgent, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow, domain.PriorityUnknown} {
		if c := s.ByPriority[p]; c > 0 {
			prio = append(prio, fmt.Sprintf("%d %s", c, p))
		}
	}
	if len(prio) > 0 {
		fmt.Fprintf(&b, " Priority: %s.", strings.Join(prio, ", "))
	}
	if s.Ransomware > 0 {
		fmt.Fprintf(&b, " %d linked to ransomware campaigns.", s.Ransomware)
	}

	if len(req.ContextLines) > 0 {
		b.WriteString("\n")
		for _, line := range req.ContextLines {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
	}
	writeTechniques(&b, req.Techniques)
	return b.String(), nil
}

func writeTechniques(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n\nRelated ATT&CK techniques:")
	for _, line := range lines {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
}

func countParts(counts map[domain.Source]int, label func(domain.Source) string) string {
	keys := make([]domain.Source, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Precedence() < keys[j].Precedence() })

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], label(k)))
	}
	return strings.Join(parts, ", ")
}
