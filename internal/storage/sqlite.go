package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const alertColumns = `
	id, title, description, location, category, severity, latitude, longitude,
	active, time_issued, expected_resolution, issuer, source, source_url
`

// Alert operations

// UpsertAlert inserts an alert or replaces every field of an existing one
func (s *SQLiteStorage) UpsertAlert(ctx context.Context, alert *types.Alert) error {
	if alert == nil {
		return types.ErrEmptyAlertID
	}
	if err := alert.Validate(); err != nil {
		return err
	}

	category := alert.Category
	if category == "" {
		category = types.CategoryOther
	}
	severity := alert.Severity
	if severity == 0 {
		severity = types.SeverityMedium
	}

	var lat, lng sql.NullFloat64
	if alert.Position != nil {
		lat = sql.NullFloat64{Float64: alert.Position.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: alert.Position.Longitude, Valid: true}
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			location = excluded.location,
			category = excluded.category,
			severity = excluded.severity,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			active = excluded.active,
			time_issued = excluded.time_issued,
			expected_resolution = excluded.expected_resolution,
			issuer = excluded.issuer,
			source = excluded.source,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at
	`
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.Title, alert.Description, alert.Location,
		string(category), severity.String(), lat, lng,
		boolToInt(alert.Active), toMillis(alert.TimeIssued), toMillis(alert.ExpectedResolution),
		alert.Issuer, alert.Source, alert.SourceURL,
		now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert alert %s: %w", alert.ID, err)
	}
	return nil
}

// FetchAlert returns one alert by ID, or ErrNotFound
func (s *SQLiteStorage) FetchAlert(ctx context.Context, id string) (*types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alert %s: %w", id, err)
	}
	return alert, nil
}

// FetchActiveAlerts returns every active alert, newest first
func (s *SQLiteStorage) FetchActiveAlerts(ctx context.Context) ([]*types.Alert, error) {
	return s.ListAlerts(ctx, AlertFilter{ActiveOnly: true})
}

// ListAlerts returns alerts matching the filter, newest first
func (s *SQLiteStorage) ListAlerts(ctx context.Context, filter AlertFilter) ([]*types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}

	if filter.ActiveOnly {
		query += " AND active = 1"
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			placeholders[i] = "?"
			args = append(args, string(c))
		}
		query += " AND category IN (" + strings.Join(placeholders, ",") + ")"
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			placeholders[i] = "?"
			args = append(args, sev.String())
		}
		query += " AND severity IN (" + strings.Join(placeholders, ",") + ")"
	}

	query += " ORDER BY time_issued DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*types.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// SetPosition records a geocoded position; nil clears it
func (s *SQLiteStorage) SetPosition(ctx context.Context, id string, pos *types.Coordinate) error {
	var lat, lng sql.NullFloat64
	if pos != nil {
		if !pos.Valid() {
			return fmt.Errorf("%w: %v", types.ErrInvalidCoordinate, *pos)
		}
		lat = sql.NullFloat64{Float64: pos.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: pos.Longitude, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET latitude = ?, longitude = ?, updated_at = ? WHERE id = ?",
		lat, lng, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to set position of alert %s: %w", id, err)
	}
	return requireAffected(result)
}

// DeactivateAlert marks an alert inactive so retrieval no longer considers it
func (s *SQLiteStorage) DeactivateAlert(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET active = 0, updated_at = ? WHERE id = ?",
		s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate alert %s: %w", id, err)
	}
	return requireAffected(result)
}

// DeleteAlert removes an alert; its embedding record cascades
func (s *SQLiteStorage) DeleteAlert(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	return requireAffected(result)
}

// Embedding record operations

// GetEmbeddingRecord returns the stored record for an alert, or nil when absent
func (s *SQLiteStorage) GetEmbeddingRecord(ctx context.Context, alertID string) (*types.EmbeddingRecord, error) {
	query := `
		SELECT alert_id, vector, dimension, source_text, last_updated
		FROM alert_embeddings
		WHERE alert_id = ?
	`
	var (
		rec       types.EmbeddingRecord
		blob      []byte
		dimension int
		updated   int64
	)
	err := s.db.QueryRowContext(ctx, query, alertID).Scan(&rec.AlertID, &blob, &dimension, &rec.SourceText, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding record %s: %w", alertID, err)
	}

	rec.Vector, err = deserializeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("embedding record %s: %w", alertID, err)
	}
	if len(rec.Vector) != dimension {
		return nil, fmt.Errorf("embedding record %s: dimension %d does not match vector length %d", alertID, dimension, len(rec.Vector))
	}
	rec.LastUpdated = time.UnixMilli(updated).UTC()
	return &rec, nil
}

// PutEmbeddingRecord stores or replaces the record for an alert.
// The alert itself must already be stored.
func (s *SQLiteStorage) PutEmbeddingRecord(ctx context.Context, rec *types.EmbeddingRecord) error {
	if rec == nil || rec.AlertID == "" {
		return types.ErrEmptyAlertID
	}

	updated := rec.LastUpdated
	if updated.IsZero() {
		updated = s.now()
	}

	query := `
		INSERT INTO alert_embeddings (alert_id, vector, dimension, source_text, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			source_text = excluded.source_text,
			last_updated = excluded.last_updated
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.AlertID, serializeVector(rec.Vector), len(rec.Vector), rec.SourceText, updated.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put embedding record %s: %w", rec.AlertID, err)
	}
	return nil
}

// DeleteEmbeddingRecord removes the record for an alert. Missing records are not an error.
func (s *SQLiteStorage) DeleteEmbeddingRecord(ctx context.Context, alertID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM alert_embeddings WHERE alert_id = ?", alertID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding record %s: %w", alertID, err)
	}
	return nil
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{BuildMode: BuildMode}

	var latest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN latitude IS NOT NULL AND longitude IS NOT NULL THEN 1 ELSE 0 END), 0),
			MAX(time_issued)
		FROM alerts
	`).Scan(&status.TotalAlerts, &status.ActiveAlerts, &status.GeocodedAlerts, &latest)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	status.LatestIssued = fromMillis(latest)

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_embeddings").Scan(&status.EmbeddingRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to count embedding records: %w", err)
	}

	status.SchemaVersion, err = SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var (
		alert              types.Alert
		category, severity string
		lat, lng           sql.NullFloat64
		active             int
		issued, resolution sql.NullInt64
	)
	err := row.Scan(
		&alert.ID, &alert.Title, &alert.Description, &alert.Location,
		&category, &severity, &lat, &lng,
		&active, &issued, &resolution,
		&alert.Issuer, &alert.Source, &alert.SourceURL,
	)
	if err != nil {
		return nil, err
	}

	alert.Category = types.Category(category)
	// Unknown values fall back to medium
	alert.Severity, _ = types.ParseSeverity(severity)
	if lat.Valid && lng.Valid {
		alert.Position = &types.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	alert.Active = active != 0
	alert.TimeIssued = fromMillis(issued)
	alert.ExpectedResolution = fromMillis(resolution)
	return &alert, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
