package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/internal/indexer"
	"github.com/dshills/alertwatch-mcp/internal/retrieval"
	"github.com/dshills/alertwatch-mcp/internal/storage"
	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeAlertNotFound      = -32001 // No alert with the given ID
	ErrorCodeBackfillInProgress = -32002 // Another backfill is already running
	ErrorCodeRetrievalFailed    = -32003 // Alert store or ranking failed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeInvalidCoordinate  = -32005 // Coordinate missing, non-finite or out of range
)

const maxLimit = 100

// handleQueryAlerts handles the query_alerts tool invocation
func (s *Server) handleQueryAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	requester, err := optionalCoordinate(args)
	if err != nil {
		return nil, err
	}

	opts := s.cfg.QueryOptions
	opts.MaxResults = getIntDefault(args, "limit", opts.MaxResults)
	if opts.MaxResults < 1 || opts.MaxResults > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": opts.MaxResults,
		})
	}
	if floor, ok := getFloat(args, "similarity_floor"); ok {
		if math.IsNaN(floor) || floor < 0 || floor > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "similarity_floor must be between 0 and 1", map[string]interface{}{
				"param": "similarity_floor",
				"value": floor,
			})
		}
		opts.SimilarityFloor = floor
	}

	q := retrieval.Query{Text: query, Requester: requester, Options: &opts}

	var (
		res        *retrieval.Result
		answer     string
		summarized bool
	)
	if getBoolDefault(args, "summarize", true) {
		ans, err := s.pipeline.Answer(ctx, q)
		if err != nil {
			return nil, retrievalError(err)
		}
		res, answer, summarized = ans.Result, ans.Text, ans.Summarized
	} else {
		res, err = s.pipeline.Retrieve(ctx, q)
		if err != nil {
			return nil, retrievalError(err)
		}
	}

	alerts := make([]map[string]interface{}, 0, len(res.Alerts))
	for _, r := range res.Alerts {
		alerts = append(alerts, rankedJSON(r))
	}

	response := map[string]interface{}{
		"query":       query,
		"mode":        res.Mode,
		"count":       len(alerts),
		"alerts":      alerts,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if answer != "" {
		response["answer"] = answer
		response["summarized"] = summarized
	}
	if res.SummaryInput.Requester != nil {
		response["requester"] = res.SummaryInput.Requester
	} else if requester != nil {
		response["requester_ignored"] = true
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleNearbyAlerts handles the nearby_alerts tool invocation
func (s *Server) handleNearbyAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	center, err := optionalCoordinate(args)
	if err != nil {
		return nil, err
	}
	if center == nil {
		return nil, newMCPError(ErrorCodeInvalidCoordinate, "latitude and longitude are required", map[string]interface{}{
			"param":  "latitude,longitude",
			"reason": "missing",
		})
	}
	if !center.Valid() {
		return nil, newMCPError(ErrorCodeInvalidCoordinate, "coordinate out of range", map[string]interface{}{
			"latitude":  center.Latitude,
			"longitude": center.Longitude,
		})
	}

	radius := s.cfg.RadiusKm
	if r, ok := getFloat(args, "radius_km"); ok {
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return nil, newMCPError(ErrorCodeInvalidParams, "radius_km must be a positive number", map[string]interface{}{
				"param": "radius_km",
				"value": r,
			})
		}
		radius = r
	}

	limit := getIntDefault(args, "limit", s.cfg.ListingMaxResults)
	if limit < 1 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	filter := storage.AlertFilter{ActiveOnly: true}
	for _, c := range getStringSlice(args, "categories") {
		filter.Categories = append(filter.Categories, types.Category(strings.ToLower(strings.TrimSpace(c))))
	}
	for _, v := range getStringSlice(args, "severities") {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid severity", map[string]interface{}{
				"param":   "severities",
				"value":   v,
				"allowed": severityEnum,
			})
		}
		filter.Severities = append(filter.Severities, sev)
	}

	stored, err := s.storage.ListAlerts(ctx, filter)
	if err != nil {
		return nil, newMCPError(ErrorCodeRetrievalFailed, "failed to list alerts", map[string]interface{}{
			"error": err.Error(),
		})
	}
	candidates := make([]types.Alert, 0, len(stored))
	for _, a := range stored {
		candidates = append(candidates, *a)
	}

	nearby, err := geo.WithinRadius(candidates, *center, radius)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidCoordinate, "invalid coordinate", map[string]interface{}{
			"error": err.Error(),
		})
	}
	total := len(nearby)
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}

	alerts := make([]map[string]interface{}, 0, len(nearby))
	for _, n := range nearby {
		entry := alertJSON(n.Alert)
		entry["distance_km"] = roundKm(n.DistanceKm)
		alerts = append(alerts, entry)
	}

	response := map[string]interface{}{
		"center":    center,
		"radius_km": radius,
		"count":     len(alerts),
		"total":     total,
		"alerts":    alerts,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetAlert handles the get_alert tool invocation
func (s *Server) handleGetAlert(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	alert, err := s.storage.FetchAlert(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeAlertNotFound, "alert not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to fetch alert", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(alertJSON(*alert))), nil
}

// handleIngestAlert handles the ingest_alert tool invocation
func (s *Server) handleIngestAlert(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	alert, err := alertFromArgs(args)
	if err != nil {
		return nil, err
	}

	stored, err := s.indexer.IngestAlert(ctx, alert)
	if err != nil {
		if errors.Is(err, types.ErrEmptyTitle) || errors.Is(err, types.ErrEmptyAlertID) ||
			errors.Is(err, types.ErrInvalidCoordinate) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid alert", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"ingested": true,
		"geocoded": stored.HasPosition(),
		"alert":    alertJSON(*stored),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBackfill handles the backfill tool invocation
func (s *Server) handleBackfill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	cfg := indexer.Config{
		Workers: s.cfg.BackfillWorkers,
		Geocode: getBoolDefault(args, "geocode", true),
		Embed:   getBoolDefault(args, "embed", true),
		Force:   getBoolDefault(args, "force", false),
	}

	stats, err := s.indexer.Backfill(ctx, cfg)
	if errors.Is(err, indexer.ErrBackfillInProgress) {
		return nil, newMCPError(ErrorCodeBackfillInProgress, "backfill already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "backfill failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"completed":      true,
		"alerts":         stats.Alerts,
		"geocoded":       stats.Geocoded,
		"geocode_failed": stats.GeocodeFailed,
		"embedded":       stats.Embedded,
		"embed_failed":   stats.EmbedFailed,
		"duration_ms":    stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	statistics := map[string]interface{}{
		"total_alerts":      status.TotalAlerts,
		"active_alerts":     status.ActiveAlerts,
		"geocoded_alerts":   status.GeocodedAlerts,
		"embedding_records": status.EmbeddingRecords,
		"database_size_mb":  fmt.Sprintf("%.2f", status.DatabaseSizeMB),
	}
	if !status.LatestIssued.IsZero() {
		statistics["latest_issued"] = status.LatestIssued.Format(time.RFC3339)
	}

	backends := map[string]interface{}{
		"summarizer_enabled": s.cfg.SummarizerEnabled,
		"record_store":       s.cfg.RecordStoreBackend,
		"build_mode":         status.BuildMode,
		"schema_version":     status.SchemaVersion,
	}
	if s.cfg.Embedder != nil {
		backends["embedding_provider"] = s.cfg.Embedder.Provider()
		backends["embedding_model"] = s.cfg.Embedder.Model()
		backends["embedding_dimension"] = s.cfg.Embedder.Dimension()
	}

	response := map[string]interface{}{
		"version":    s.cfg.Version,
		"statistics": statistics,
		"backends":   backends,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// retrievalError maps pipeline failures onto MCP error codes
func retrievalError(err error) error {
	switch {
	case errors.Is(err, types.ErrRetrievalFailed):
		return newMCPError(ErrorCodeRetrievalFailed, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeInternalError, "request cancelled", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// optionalCoordinate reads latitude/longitude. Both or neither must be given.
// Range is not checked here.
func optionalCoordinate(args map[string]interface{}) (*types.Coordinate, error) {
	lat, hasLat := getFloat(args, "latitude")
	lng, hasLng := getFloat(args, "longitude")
	if !hasLat && !hasLng {
		return nil, nil
	}
	if hasLat != hasLng {
		return nil, newMCPError(ErrorCodeInvalidCoordinate, "latitude and longitude must be given together", map[string]interface{}{
			"param":  "latitude,longitude",
			"reason": "only one provided",
		})
	}
	return &types.Coordinate{Latitude: lat, Longitude: lng}, nil
}

// alertFromArgs builds an alert from ingest_alert arguments
func alertFromArgs(args map[string]interface{}) (*types.Alert, error) {
	a := &types.Alert{
		ID:          getStringDefault(args, "id", ""),
		Title:       strings.TrimSpace(getStringDefault(args, "title", "")),
		Description: getStringDefault(args, "description", ""),
		Location:    getStringDefault(args, "location", ""),
		Category:    types.Category(strings.ToLower(strings.TrimSpace(getStringDefault(args, "category", "")))),
		Issuer:      getStringDefault(args, "issuer", ""),
		Source:      getStringDefault(args, "source", ""),
		SourceURL:   getStringDefault(args, "source_url", ""),
	}
	if a.Title == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "title parameter is required", map[string]interface{}{
			"param":  "title",
			"reason": "missing or empty",
		})
	}

	if v, ok := args["severity"].(string); ok {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid severity", map[string]interface{}{
				"param":   "severity",
				"value":   v,
				"allowed": severityEnum,
			})
		}
		a.Severity = sev
	}

	pos, err := optionalCoordinate(args)
	if err != nil {
		return nil, err
	}
	if pos != nil && !pos.Valid() {
		return nil, newMCPError(ErrorCodeInvalidCoordinate, "coordinate out of range", map[string]interface{}{
			"latitude":  pos.Latitude,
			"longitude": pos.Longitude,
		})
	}
	a.Position = pos

	for key, dst := range map[string]*time.Time{
		"time_issued":         &a.TimeIssued,
		"expected_resolution": &a.ExpectedResolution,
	} {
		v := getStringDefault(args, key, "")
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid timestamp", map[string]interface{}{
				"param":  key,
				"value":  v,
				"reason": "expected RFC 3339",
			})
		}
		*dst = t.UTC()
	}

	return a, nil
}

// alertJSON renders an alert for tool output
func alertJSON(a types.Alert) map[string]interface{} {
	out := map[string]interface{}{
		"id":          a.ID,
		"title":       a.Title,
		"description": a.Description,
		"category":    string(a.Category),
		"severity":    a.Severity.String(),
		"active":      a.Active,
		"time_issued": a.TimeIssued.Format(time.RFC3339),
	}
	if a.Location != "" {
		out["location"] = a.Location
	}
	if a.HasPosition() {
		out["position"] = a.Position
	}
	if !a.ExpectedResolution.IsZero() {
		out["expected_resolution"] = a.ExpectedResolution.Format(time.RFC3339)
	}
	if a.Issuer != "" {
		out["issuer"] = a.Issuer
	}
	if a.SourceURL != "" {
		out["source_url"] = a.SourceURL
	}
	return out
}

// rankedJSON renders a ranked result for tool output
func rankedJSON(r types.RankedResult) map[string]interface{} {
	out := alertJSON(r.Alert)
	out["match"] = string(r.Match)
	if r.SimilarityScore != types.UnrankedSimilarity {
		out["similarity"] = math.Round(r.SimilarityScore*1000) / 1000
	}
	if r.HasDistance() {
		out["distance_km"] = roundKm(*r.DistanceKm)
	}
	return out
}

func roundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloat extracts an optional number parameter
func getFloat(args map[string]interface{}, key string) (float64, bool) {
	switch val := args[key].(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, skipping non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
