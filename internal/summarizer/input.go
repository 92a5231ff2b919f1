package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// Summarizer produces an answer for a query from its ranked alerts.
// Failures wrap types.ErrSummarizationUnavailable.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (string, error)
}

// Entry is one alert as presented to the summarizer
type Entry struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Category           types.Category `json:"category"`
	Severity           types.Severity `json:"severity"`
	Location           string         `json:"location,omitempty"`
	Issued             time.Time      `json:"issued"`
	ExpectedResolution time.Time      `json:"expectedResolution,omitempty"`
	Issuer             string         `json:"issuer,omitempty"`

	// Similarity is types.UnrankedSimilarity for keyword matches
	Similarity float64  `json:"similarity"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// Input is the ordered summary input for one query
type Input struct {
	Query     string            `json:"query"`
	Requester *types.Coordinate `json:"requester,omitempty"`
	Alerts    []Entry           `json:"alerts"`
}

// NewInput builds the summary input, preserving result order
func NewInput(query string, requester *types.Coordinate, results []types.RankedResult) Input {
	in := Input{
		Query:  query,
		Alerts: make([]Entry, 0, len(results)),
	}
	if requester != nil {
		c := *requester
		in.Requester = &c
	}
	for _, r := range results {
		a := r.Alert
		in.Alerts = append(in.Alerts, Entry{
			ID:                 a.ID,
			Title:              a.Title,
			Description:        a.Description,
			Category:           a.Category,
			Severity:           a.Severity,
			Location:           a.Location,
			Issued:             a.TimeIssued,
			ExpectedResolution: a.ExpectedResolution,
			Issuer:             a.Issuer,
			Similarity:         r.SimilarityScore,
			DistanceKm:         r.DistanceKm,
		})
	}
	return in
}

// timeLayout is used for every timestamp shown to the model or the user
const timeLayout = "2 Jan 2006 15:04 MST"

// Format renders the alerts as the context block handed to a language model
func (in Input) Format() string {
	var b strings.Builder
	for i, e := range in.Alerts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "ID: %s\n", e.ID)
		fmt.Fprintf(&b, "Title: %s\n", e.Title)
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
		fmt.Fprintf(&b, "Category: %s\n", e.Category)
		fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
		if e.Location != "" {
			fmt.Fprintf(&b, "Location: %s\n", e.Location)
		}
		if !e.Issued.IsZero() {
			fmt.Fprintf(&b, "Issued: %s\n", e.Issued.Format(timeLayout))
		}
		if !e.ExpectedResolution.IsZero() {
			fmt.Fprintf(&b, "Expected Resolution: %s\n", e.ExpectedResolution.Format(timeLayout))
		}
		if e.Issuer != "" {
			fmt.Fprintf(&b, "Issuer: %s\n", e.Issuer)
		}
		if e.Similarity == types.UnrankedSimilarity {
			b.WriteString("Relevance Score: keyword match\n")
		} else {
			fmt.Fprintf(&b, "Relevance Score: %.2f%%\n", e.Similarity*100)
		}
		if e.DistanceKm != nil {
			fmt.Fprintf(&b, "Distance: %.1f km\n", *e.DistanceKm)
		}
	}
	if in.Requester != nil {
		fmt.Fprintf(&b, "\nUser is located at: Latitude %g, Longitude %g\n", in.Requester.Latitude, in.Requester.Longitude)
	}
	return b.String()
}
