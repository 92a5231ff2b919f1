package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolQueryAlerts  = "query_alerts"
	ToolNearbyAlerts = "nearby_alerts"
	ToolGetAlert     = "get_alert"
	ToolIngestAlert  = "ingest_alert"
	ToolBackfill     = "backfill"
	ToolGetStatus    = "get_status"
)

var (
	severityEnum = []string{"low", "medium", "high"}
	categoryEnum = []string{"fire", "weather", "transport", "other"}
)

func latitudeProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
		"minimum":     -90.0,
		"maximum":     90.0,
	}
}

func longitudeProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
		"minimum":     -180.0,
		"maximum":     180.0,
	}
}

// queryAlertsTool returns the tool definition for query_alerts
func queryAlertsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolQueryAlerts,
		Description: "Answer a natural-language question about current public alerts, ranked by relevance and distance from the user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language question, e.g. 'any fires near me?'",
				},
				"latitude":  latitudeProperty("User latitude in degrees (optional, requires longitude)"),
				"longitude": longitudeProperty("User longitude in degrees (optional, requires latitude)"),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of alerts to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"similarity_floor": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity for a match (0.0-1.0); 0 lists every active alert",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"summarize": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include a prose answer summarizing the matched alerts",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// nearbyAlertsTool returns the tool definition for nearby_alerts
func nearbyAlertsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolNearbyAlerts,
		Description: "List active alerts within a radius of a position, nearest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"latitude":  latitudeProperty("Center latitude in degrees"),
				"longitude": longitudeProperty("Center longitude in degrees"),
				"radius_km": map[string]interface{}{
					"type":             "number",
					"description":      "Search radius in kilometres",
					"default":          10,
					"exclusiveMinimum": 0,
				},
				"categories": map[string]interface{}{
					"type":        "array",
					"description": "Only include these categories",
					"items": map[string]interface{}{
						"type": "string",
						"enum": categoryEnum,
					},
				},
				"severities": map[string]interface{}{
					"type":        "array",
					"description": "Only include these severities",
					"items": map[string]interface{}{
						"type": "string",
						"enum": severityEnum,
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of alerts to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"latitude", "longitude"},
		},
	}
}

// getAlertTool returns the tool definition for get_alert
func getAlertTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetAlert,
		Description: "Fetch a single alert by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Alert ID",
				},
			},
			Required: []string{"id"},
		},
	}
}

// ingestAlertTool returns the tool definition for ingest_alert
func ingestAlertTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIngestAlert,
		Description: "Store or replace an alert, geocoding its location and computing its embedding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Alert ID; generated when omitted, replaces the stored alert when it exists",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Alert title",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Alert body text",
				},
				"location": map[string]interface{}{
					"type":        "string",
					"description": "Free-text location, geocoded when no coordinates are given",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Alert category",
					"enum":        categoryEnum,
					"default":     "other",
				},
				"severity": map[string]interface{}{
					"type":        "string",
					"description": "Alert severity",
					"enum":        severityEnum,
					"default":     "medium",
				},
				"latitude":  latitudeProperty("Alert latitude in degrees (optional, requires longitude)"),
				"longitude": longitudeProperty("Alert longitude in degrees (optional, requires latitude)"),
				"time_issued": map[string]interface{}{
					"type":        "string",
					"description": "Issue time (RFC 3339); defaults to now",
					"format":      "date-time",
				},
				"expected_resolution": map[string]interface{}{
					"type":        "string",
					"description": "Expected resolution time (RFC 3339)",
					"format":      "date-time",
				},
				"issuer": map[string]interface{}{
					"type":        "string",
					"description": "Issuing authority",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Feed or scraper the alert came from",
				},
				"source_url": map[string]interface{}{
					"type":        "string",
					"description": "Link to the original alert",
				},
			},
			Required: []string{"title"},
		},
	}
}

// backfillTool returns the tool definition for backfill
func backfillTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolBackfill,
		Description: "Geocode and embed every active alert that is missing a position or embedding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"geocode": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, geocode alerts without a position",
					"default":     true,
				},
				"embed": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, compute missing or stale embeddings",
					"default":     true,
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, recompute every embedding",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetStatus,
		Description: "Report alert counts, geocoding and embedding coverage and backend configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
