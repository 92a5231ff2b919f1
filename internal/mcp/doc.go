// Package mcp implements the Model Context Protocol (MCP) server for alertwatch.
//
// The MCP server exposes the alert retrieval engine to AI assistants:
//   - query_alerts: Answer a natural-language question about current alerts
//   - nearby_alerts: List active alerts within a radius of a position
//   - get_alert: Fetch a single alert by ID
//   - ingest_alert: Store an alert, geocoding and embedding it
//   - backfill: Geocode and embed alerts that are missing either
//   - get_status: Report alert counts and backend configuration
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout is reserved for the protocol.
//
// # Tool: query_alerts
//
//	Request:
//	{
//	  "name": "query_alerts",
//	  "arguments": {
//	    "query": "any fires near me?",
//	    "latitude": -33.8688,
//	    "longitude": 151.2093,
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "query": "any fires near me?",
//	  "mode": "semantic",
//	  "count": 1,
//	  "answer": "Found 1 relevant alert(s). ...",
//	  "summarized": false,
//	  "alerts": [
//	    {
//	      "id": "f3b1...",
//	      "title": "Grass fire",
//	      "severity": "high",
//	      "match": "semantic",
//	      "similarity": 0.912,
//	      "distance_km": 6.7
//	    }
//	  ]
//	}
//
// The mode is "keyword" when the query could not be embedded; keyword
// matches carry no similarity. A requester position that is out of range is
// ignored and reported as "requester_ignored".
//
// # Tool: nearby_alerts
//
//	Request:
//	{
//	  "name": "nearby_alerts",
//	  "arguments": {
//	    "latitude": -33.8688,
//	    "longitude": 151.2093,
//	    "radius_km": 10,
//	    "severities": ["high"]
//	  }
//	}
//
// # Error Handling
//
// Errors are returned as MCPError values carrying JSON-RPC style codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, cancelled request)
//   - -32001: Alert not found
//   - -32002: Backfill in progress
//   - -32003: Retrieval failed (alert store or ranking)
//   - -32004: Empty query
//   - -32005: Invalid coordinate
//
// An unavailable embedding or summarization backend is never an error: the
// server falls back to keyword matching and the templated answer.
package mcp
