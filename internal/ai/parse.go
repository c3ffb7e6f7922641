package ai

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/collabhub/internal/models"
)

// MaxSuggestions caps the suggestion list taken from one reply
const MaxSuggestions = 10

var (
	numberedLine = regexp.MustCompile(`^\d+[.)]\s+\S`)
	issueRef     = regexp.MustCompile(`#(\d+)`)
	integer      = regexp.MustCompile(`\d+`)
)

func isSuggestion(line string) bool {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) && strings.TrimSpace(line[len(prefix):]) != "" {
			return true
		}
	}
	return numberedLine.MatchString(line)
}

// ParseSuggestions returns the trimmed bullet or numbered lines of a reply.
// Prose and header lines are ignored, so an unstructured reply yields an
// empty list.
func ParseSuggestions(text string) []string {
	suggestions := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !isSuggestion(line) {
			continue
		}
		suggestions = append(suggestions, line)
		if len(suggestions) == MaxSuggestions {
			break
		}
	}
	return suggestions
}

// headers collects "Key: value" lines, keyed by lower-cased key
func headers(text string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if isSuggestion(line) {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		switch key {
		case "risk", "category", "effort", "labels", "related":
			if _, seen := out[key]; !seen {
				out[key] = strings.TrimSpace(value)
			}
		}
	}
	return out
}

// ComplexityFor tiers a pull request by the number of files it changes
func ComplexityFor(changedFiles int) models.Complexity {
	switch {
	case changedFiles > 10:
		return models.ComplexityHigh
	case changedFiles > 5:
		return models.ComplexityMedium
	default:
		return models.ComplexityLow
	}
}

// RiskHeuristic estimates risk from change size when the model gives none
func RiskHeuristic(stats models.ChangeStats) int {
	return clamp(stats.ChangedFiles*5 + (stats.Additions+stats.Deletions)/20)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// ParsePRAnalysis builds a pull request annotation from a reply. It returns
// nil when the reply contains no suggestions.
func ParsePRAnalysis(text string, stats models.ChangeStats, now time.Time) *models.PRAnalysis {
	suggestions := ParseSuggestions(text)
	if len(suggestions) == 0 {
		return nil
	}

	risk := RiskHeuristic(stats)
	if raw, ok := headers(text)["risk"]; ok {
		if n, err := strconv.Atoi(integer.FindString(raw)); err == nil {
			risk = clamp(n)
		}
	}

	return &models.PRAnalysis{
		Summary:      strings.TrimSpace(text),
		Suggestions:  suggestions,
		RiskScore:    risk,
		Complexity:   ComplexityFor(stats.ChangedFiles),
		LastAnalyzed: now,
	}
}

// ParseIssueAnalysis builds an issue annotation from a reply. Related issues
// are the #N references found in the issue body and the reply's Related line.
// It returns nil when the reply contains no suggestions.
func ParseIssueAnalysis(text, body string, now time.Time) *models.IssueAnalysis {
	suggestions := ParseSuggestions(text)
	if len(suggestions) == 0 {
		return nil
	}

	h := headers(text)

	category := strings.ToLower(h["category"])
	if category == "" {
		category = "general"
	}
	effort := strings.ToLower(h["effort"])
	if effort == "" {
		effort = "medium"
	}

	labels := []string{}
	for _, l := range strings.Split(h["labels"], ",") {
		l = strings.TrimSpace(l)
		if l != "" && !strings.EqualFold(l, "none") {
			labels = append(labels, l)
		}
	}

	return &models.IssueAnalysis{
		Summary:         strings.TrimSpace(text),
		Suggestions:     suggestions,
		Category:        category,
		SuggestedLabels: labels,
		EstimatedEffort: effort,
		RelatedIssues:   issueRefs(body + "\n" + h["related"]),
		LastAnalyzed:    now,
	}
}

func issueRefs(text string) []int {
	seen := map[int]bool{}
	refs := []int{}
	for _, m := range issueRef.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		refs = append(refs, n)
	}
	sort.Ints(refs)
	return refs
}
