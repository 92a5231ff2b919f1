package summarizer

import (
	"fmt"
	"strings"
)

// NoResultsAnswer is returned when retrieval found nothing to summarize
const NoResultsAnswer = "No relevant alerts found for your query."

// Template renders a deterministic answer without a language model
func Template(in Input) string {
	if len(in.Alerts) == 0 {
		return NoResultsAnswer
	}

	var b strings.Builder
	plural := "s"
	if len(in.Alerts) == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "Found %d relevant alert%s.\n\n", len(in.Alerts), plural)

	for i, e := range in.Alerts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Title)
		if e.Severity != 0 {
			fmt.Fprintf(&b, "   Severity: %s\n", capitalize(e.Severity.String()))
		}
		if e.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", e.Location)
		}
		if e.DistanceKm != nil {
			fmt.Fprintf(&b, "   Distance: %.1f km away\n", *e.DistanceKm)
		}
		if e.Description != "" {
			fmt.Fprintf(&b, "   %s\n", e.Description)
		}
		if !e.Issued.IsZero() {
			fmt.Fprintf(&b, "   Issued: %s\n", e.Issued.Format(timeLayout))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
