package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

func TestQueryAlerts_Semantic(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleQueryAlerts, map[string]interface{}{
		"query":     "any fires near me?",
		"latitude":  sydneyCBD.Latitude,
		"longitude": sydneyCBD.Longitude,
	})
	require.NoError(t, err)

	assert.Equal(t, "semantic", resp["mode"])
	assert.Equal(t, []string{"fire-near", "fire-far"}, alertIDs(t, resp), "flood is below the floor; nearer fire first")
	assert.Contains(t, resp["answer"], "Found 2 relevant alert(s).")
	assert.Equal(t, false, resp["summarized"])

	first := resp["alerts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "semantic", first["match"])
	assert.InDelta(t, 1.0, first["similarity"], 1e-9)
	assert.InDelta(t, 6.7, first["distance_km"], 0.5)
}

func TestQueryAlerts_NoSummary(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleQueryAlerts, map[string]interface{}{
		"query":     "flood",
		"summarize": false,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"flood"}, alertIDs(t, resp))
	assert.NotContains(t, resp, "answer")
}

func TestQueryAlerts_NoResults(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleQueryAlerts, map[string]interface{}{"query": "road closures"})
	require.NoError(t, err)

	assert.Equal(t, float64(0), resp["count"])
	assert.Equal(t, "No relevant alerts found for your query.", resp["answer"])
}

func TestQueryAlerts_ListingFloor(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleQueryAlerts, map[string]interface{}{
		"query":            "fire",
		"similarity_floor": 0.0,
		"limit":            2,
		"summarize":        false,
	})
	require.NoError(t, err)

	assert.Equal(t, float64(2), resp["count"], "listing mode keeps every alert, capped by limit")
}

func TestQueryAlerts_KeywordFallback(t *testing.T) {
	s := newTestServer(t, nil, nil)
	seed(t, s)

	resp, err := call(t, s.handleQueryAlerts, map[string]interface{}{
		"query":     "grass fire",
		"latitude":  sydneyCBD.Latitude,
		"longitude": sydneyCBD.Longitude,
	})
	require.NoError(t, err)

	assert.Equal(t, "keyword", resp["mode"])
	ids := alertIDs(t, resp)
	assert.Contains(t, ids, "fire-near")
	assert.NotContains(t, ids, "flood")

	first := resp["alerts"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, first, "similarity", "keyword matches are unranked")
	assert.Contains(t, first, "distance_km")
}

func TestQueryAlerts_InvalidRequesterIgnored(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleQueryAlerts, map[string]interface{}{
		"query":     "fire",
		"latitude":  123.0,
		"longitude": 151.0,
	})
	require.NoError(t, err)

	assert.Equal(t, true, resp["requester_ignored"])
	for _, a := range resp["alerts"].([]interface{}) {
		assert.NotContains(t, a.(map[string]interface{}), "distance_km")
	}
}

func TestQueryAlerts_InvalidParams(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"query": "   "}, ErrorCodeEmptyQuery},
		{"limit too large", map[string]interface{}{"query": "fire", "limit": 500}, ErrorCodeInvalidParams},
		{"limit zero", map[string]interface{}{"query": "fire", "limit": 0}, ErrorCodeInvalidParams},
		{"floor out of range", map[string]interface{}{"query": "fire", "similarity_floor": 1.5}, ErrorCodeInvalidParams},
		{"latitude only", map[string]interface{}{"query": "fire", "latitude": -33.0}, ErrorCodeInvalidCoordinate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, s.handleQueryAlerts, tt.args)
			requireMCPError(t, err, tt.code)
		})
	}

	req := newRequest(ToolQueryAlerts, nil)
	req.Params.Arguments = "not an object"
	_, err := s.handleQueryAlerts(context.Background(), req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestNearbyAlerts(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	tests := []struct {
		name string
		args map[string]interface{}
		want []string
	}{
		{
			name: "default radius",
			args: map[string]interface{}{},
			want: []string{"flood", "fire-near"},
		},
		{
			name: "wide radius",
			args: map[string]interface{}{"radius_km": 50.0},
			want: []string{"flood", "fire-near", "fire-far"},
		},
		{
			name: "severity filter",
			args: map[string]interface{}{"severities": []interface{}{"high"}},
			want: []string{"fire-near"},
		},
		{
			name: "category filter",
			args: map[string]interface{}{"radius_km": 50.0, "categories": []interface{}{"Fire"}},
			want: []string{"fire-near", "fire-far"},
		},
		{
			name: "limit",
			args: map[string]interface{}{"radius_km": 50.0, "limit": 1},
			want: []string{"flood"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["latitude"] = sydneyCBD.Latitude
			tt.args["longitude"] = sydneyCBD.Longitude

			resp, err := call(t, s.handleNearbyAlerts, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, alertIDs(t, resp))
		})
	}
}

func TestNearbyAlerts_SkipsInactive(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)
	require.NoError(t, s.storage.DeactivateAlert(context.Background(), "flood"))

	resp, err := call(t, s.handleNearbyAlerts, map[string]interface{}{
		"latitude":  sydneyCBD.Latitude,
		"longitude": sydneyCBD.Longitude,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fire-near"}, alertIDs(t, resp))
}

func TestNearbyAlerts_InvalidParams(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing coordinates", map[string]interface{}{}, ErrorCodeInvalidCoordinate},
		{"out of range", map[string]interface{}{"latitude": 91.0, "longitude": 0.0}, ErrorCodeInvalidCoordinate},
		{"negative radius", map[string]interface{}{"latitude": 0.0, "longitude": 0.0, "radius_km": -1.0}, ErrorCodeInvalidParams},
		{"unknown severity", map[string]interface{}{"latitude": 0.0, "longitude": 0.0, "severities": []interface{}{"extreme"}}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, s.handleNearbyAlerts, tt.args)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestGetAlert(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleGetAlert, map[string]interface{}{"id": "fire-near"})
	require.NoError(t, err)
	assert.Equal(t, "Grass fire", resp["title"])
	assert.Equal(t, "high", resp["severity"])
	assert.Equal(t, "fire", resp["category"])
	assert.Equal(t, true, resp["active"])
	assert.Contains(t, resp, "position")

	_, err = call(t, s.handleGetAlert, map[string]interface{}{"id": "nope"})
	requireMCPError(t, err, ErrorCodeAlertNotFound)

	_, err = call(t, s.handleGetAlert, map[string]interface{}{})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestIngestAlert(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)

	resp, err := call(t, s.handleIngestAlert, map[string]interface{}{
		"title":               "Road closed",
		"description":         "Crash on the highway",
		"severity":            "HIGH",
		"category":            "transport",
		"latitude":            bondi.Latitude,
		"longitude":           bondi.Longitude,
		"time_issued":         "2026-01-10T09:30:00+11:00",
		"expected_resolution": "2026-01-10T12:00:00Z",
		"issuer":              "Transport for NSW",
	})
	require.NoError(t, err)
	assert.Equal(t, true, resp["ingested"])
	assert.Equal(t, true, resp["geocoded"])

	alert := resp["alert"].(map[string]interface{})
	id := alert["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "2026-01-09T22:30:00Z", alert["time_issued"])

	stored, err := s.storage.FetchAlert(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityHigh, stored.Severity)
	assert.Equal(t, types.CategoryTransport, stored.Category)
	assert.Equal(t, "Transport for NSW", stored.Issuer)

	status, err := s.storage.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.EmbeddingRecords, "ingest warms the embedding")
}

func TestIngestAlert_InvalidParams(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing title", map[string]interface{}{"description": "x"}, ErrorCodeInvalidParams},
		{"bad severity", map[string]interface{}{"title": "x", "severity": "extreme"}, ErrorCodeInvalidParams},
		{"bad timestamp", map[string]interface{}{"title": "x", "time_issued": "yesterday"}, ErrorCodeInvalidParams},
		{"longitude only", map[string]interface{}{"title": "x", "longitude": 10.0}, ErrorCodeInvalidCoordinate},
		{"out of range", map[string]interface{}{"title": "x", "latitude": 10.0, "longitude": 200.0}, ErrorCodeInvalidCoordinate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, s.handleIngestAlert, tt.args)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestBackfill(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleBackfill, map[string]interface{}{"geocode": false})
	require.NoError(t, err)

	assert.Equal(t, true, resp["completed"])
	assert.Equal(t, float64(3), resp["alerts"])
	assert.Equal(t, float64(3), resp["embedded"])
	assert.Equal(t, float64(0), resp["embed_failed"])
	assert.NotContains(t, resp, "errors")
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t, topicEmbedder{}, nil)
	seed(t, s)

	resp, err := call(t, s.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)

	stats := resp["statistics"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["total_alerts"])
	assert.Equal(t, float64(3), stats["active_alerts"])
	assert.Equal(t, float64(3), stats["geocoded_alerts"])
	assert.Equal(t, float64(3), stats["embedding_records"])
	assert.Contains(t, stats, "latest_issued")

	backends := resp["backends"].(map[string]interface{})
	assert.Equal(t, "topic", backends["embedding_provider"])
	assert.Equal(t, "sqlite", backends["record_store"])
	assert.Equal(t, "1.1.0", backends["schema_version"])
}
