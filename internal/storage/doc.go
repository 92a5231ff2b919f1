// Package storage provides SQLite-based persistence for public alerts.
//
// The storage layer manages:
//   - Alerts, including their geocoded position and lifecycle flags
//   - Embedding records, one per alert, cascaded when the alert is deleted
//   - Schema migrations versioned with semver
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations
//   - alerts: alert text, category, severity, position and timestamps
//   - alert_embeddings: float32 vector blob and the text it was computed from
//
// Times are stored as unix milliseconds so both drivers read them back identically.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.alertwatch/alertwatch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.UpsertAlert(ctx, &types.Alert{ID: "a1", Title: "Bushfire", Active: true})
//	alerts, err := db.FetchActiveAlerts(ctx)
//
// SQLiteStorage also satisfies embedcache.RecordStore, so it can back the
// embedding cache directly.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
