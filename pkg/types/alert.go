package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Severity is an ordered alert severity: Low < Medium < High
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// String returns the lowercase wire name of the severity
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseSeverity parses low/medium/high case-insensitively.
// Unknown input yields SeverityMedium together with ErrUnknownSeverity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium", "":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return SeverityMedium, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	*s = v
	return err
}

// Category represents the kind of public alert
type Category string

const (
	CategoryFire      Category = "fire"
	CategoryWeather   Category = "weather"
	CategoryTransport Category = "transport"
	CategoryOther     Category = "other"
)

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Valid reports whether both components are finite and within range
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Alert is a public alert as consumed by the retrieval engine
type Alert struct {
	// Identification
	ID string `json:"id"`

	// Text fields
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`

	// Position is nil until the location has been geocoded
	Position *Coordinate `json:"position,omitempty"`

	// Lifecycle
	Active             bool      `json:"active"`
	TimeIssued         time.Time `json:"timeIssued"`
	ExpectedResolution time.Time `json:"expectedResolution,omitempty"`

	// Provenance
	Issuer    string `json:"issuer,omitempty"`
	Source    string `json:"source,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// HasPosition reports whether the alert carries a usable position
func (a *Alert) HasPosition() bool {
	return a.Position != nil && a.Position.Valid()
}

// Validate checks the fields required to store an alert
func (a *Alert) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyAlertID
	}
	if strings.TrimSpace(a.Title) == "" {
		return ErrEmptyTitle
	}
	if a.Position != nil && !a.Position.Valid() {
		return fmt.Errorf("%w: position %v", ErrInvalidCoordinate, *a.Position)
	}
	return nil
}

// EmbeddingRecord is the cached embedding of one alert.
// Vector always corresponds to SourceText.
type EmbeddingRecord struct {
	AlertID     string    `json:"alertId"`
	Vector      []float32 `json:"vector"`
	SourceText  string    `json:"sourceText"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy of the record
func (r *EmbeddingRecord) Clone() *EmbeddingRecord {
	if r == nil {
		return nil
	}
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	return &EmbeddingRecord{
		AlertID:     r.AlertID,
		Vector:      vec,
		SourceText:  r.SourceText,
		LastUpdated: r.LastUpdated,
	}
}
