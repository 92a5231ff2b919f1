package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

var _ Storage = (*SQLiteStorage)(nil)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

var baseTime = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func testAlert(id string, issuedOffset time.Duration) *types.Alert {
	return &types.Alert{
		ID:          id,
		Title:       "Bushfire " + id,
		Description: "Out of control fire",
		Location:    "Blue Mountains",
		Category:    types.CategoryFire,
		Severity:    types.SeverityHigh,
		Active:      true,
		TimeIssued:  baseTime.Add(issuedOffset),
		Issuer:      "RFS",
	}
}

func TestUpsertAndFetchAlert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	alert := testAlert("a1", 0)
	alert.Position = &types.Coordinate{Latitude: -33.7, Longitude: 150.3}
	alert.ExpectedResolution = baseTime.Add(6 * time.Hour)
	alert.SourceURL = "https://example.org/a1"
	require.NoError(t, s.UpsertAlert(ctx, alert))

	got, err := s.FetchAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, alert.Title, got.Title)
	assert.Equal(t, alert.Description, got.Description)
	assert.Equal(t, alert.Location, got.Location)
	assert.Equal(t, types.CategoryFire, got.Category)
	assert.Equal(t, types.SeverityHigh, got.Severity)
	assert.True(t, got.Active)
	assert.True(t, alert.TimeIssued.Equal(got.TimeIssued))
	assert.True(t, alert.ExpectedResolution.Equal(got.ExpectedResolution))
	assert.Equal(t, "RFS", got.Issuer)
	assert.Equal(t, alert.SourceURL, got.SourceURL)
	require.NotNil(t, got.Position)
	assert.InDelta(t, -33.7, got.Position.Latitude, 1e-9)
	assert.InDelta(t, 150.3, got.Position.Longitude, 1e-9)
}

func TestUpsertAlert_Defaults(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAlert(ctx, &types.Alert{ID: "a1", Title: "Road closed"}))

	got, err := s.FetchAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.CategoryOther, got.Category)
	assert.Equal(t, types.SeverityMedium, got.Severity)
	assert.Nil(t, got.Position)
	assert.True(t, got.TimeIssued.IsZero())
	assert.True(t, got.ExpectedResolution.IsZero())
}

func TestUpsertAlert_Replaces(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	alert := testAlert("a1", 0)
	alert.Position = &types.Coordinate{Latitude: -33.7, Longitude: 150.3}
	require.NoError(t, s.UpsertAlert(ctx, alert))

	alert.Title = "Bushfire downgraded"
	alert.Severity = types.SeverityLow
	alert.Position = nil
	require.NoError(t, s.UpsertAlert(ctx, alert))

	got, err := s.FetchAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Bushfire downgraded", got.Title)
	assert.Equal(t, types.SeverityLow, got.Severity)
	assert.Nil(t, got.Position)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalAlerts)
}

func TestUpsertAlert_Invalid(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpsertAlert(ctx, nil), types.ErrEmptyAlertID)
	assert.ErrorIs(t, s.UpsertAlert(ctx, &types.Alert{Title: "x"}), types.ErrEmptyAlertID)
	assert.ErrorIs(t, s.UpsertAlert(ctx, &types.Alert{ID: "a1"}), types.ErrEmptyTitle)

	bad := testAlert("a2", 0)
	bad.Position = &types.Coordinate{Latitude: 95}
	assert.ErrorIs(t, s.UpsertAlert(ctx, bad), types.ErrInvalidCoordinate)
}

func TestFetchAlert_NotFound(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.FetchAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchActiveAlerts_NewestFirst(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAlert(ctx, testAlert("old", 0)))
	require.NoError(t, s.UpsertAlert(ctx, testAlert("new", 2*time.Hour)))
	require.NoError(t, s.UpsertAlert(ctx, testAlert("mid", time.Hour)))
	inactive := testAlert("gone", 3*time.Hour)
	inactive.Active = false
	require.NoError(t, s.UpsertAlert(ctx, inactive))

	alerts, err := s.FetchActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "new", alerts[0].ID)
	assert.Equal(t, "mid", alerts[1].ID)
	assert.Equal(t, "old", alerts[2].ID)
}

func TestListAlerts_Filters(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	fire := testAlert("fire", 0)
	storm := testAlert("storm", time.Hour)
	storm.Category = types.CategoryWeather
	storm.Severity = types.SeverityMedium
	train := testAlert("train", 2*time.Hour)
	train.Category = types.CategoryTransport
	train.Severity = types.SeverityLow
	train.Active = false
	for _, a := range []*types.Alert{fire, storm, train} {
		require.NoError(t, s.UpsertAlert(ctx, a))
	}

	tests := []struct {
		name   string
		filter AlertFilter
		want   []string
	}{
		{"all", AlertFilter{}, []string{"train", "storm", "fire"}},
		{"active only", AlertFilter{ActiveOnly: true}, []string{"storm", "fire"}},
		{"category", AlertFilter{Categories: []types.Category{types.CategoryFire, types.CategoryTransport}}, []string{"train", "fire"}},
		{"severity", AlertFilter{Severities: []types.Severity{types.SeverityMedium}}, []string{"storm"}},
		{"combined", AlertFilter{ActiveOnly: true, Severities: []types.Severity{types.SeverityLow}}, nil},
		{"limit", AlertFilter{Limit: 1}, []string{"train"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, err := s.ListAlerts(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, a := range alerts {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSetPosition(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertAlert(ctx, testAlert("a1", 0)))

	pos := &types.Coordinate{Latitude: -37.81, Longitude: 144.96}
	require.NoError(t, s.SetPosition(ctx, "a1", pos))

	got, err := s.FetchAlert(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got.Position)
	assert.Equal(t, *pos, *got.Position)

	require.NoError(t, s.SetPosition(ctx, "a1", nil))
	got, err = s.FetchAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got.Position)

	assert.ErrorIs(t, s.SetPosition(ctx, "a1", &types.Coordinate{Longitude: 200}), types.ErrInvalidCoordinate)
	assert.ErrorIs(t, s.SetPosition(ctx, "missing", pos), ErrNotFound)
}

func TestDeactivateAlert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertAlert(ctx, testAlert("a1", 0)))

	require.NoError(t, s.DeactivateAlert(ctx, "a1"))

	alerts, err := s.FetchActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	got, err := s.FetchAlert(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.DeactivateAlert(ctx, "missing"), ErrNotFound)
}

func TestEmbeddingRecordRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertAlert(ctx, testAlert("a1", 0)))

	rec, err := s.GetEmbeddingRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	in := &types.EmbeddingRecord{
		AlertID:     "a1",
		Vector:      []float32{0.25, -0.5, 1},
		SourceText:  "Bushfire a1 Out of control fire Blue Mountains",
		LastUpdated: baseTime,
	}
	require.NoError(t, s.PutEmbeddingRecord(ctx, in))

	rec, err = s.GetEmbeddingRecord(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, in.Vector, rec.Vector)
	assert.Equal(t, in.SourceText, rec.SourceText)
	assert.True(t, baseTime.Equal(rec.LastUpdated))

	in.Vector = []float32{1, 0}
	in.SourceText = "changed"
	require.NoError(t, s.PutEmbeddingRecord(ctx, in))
	rec, err = s.GetEmbeddingRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
	assert.Equal(t, "changed", rec.SourceText)

	require.NoError(t, s.DeleteEmbeddingRecord(ctx, "a1"))
	rec, err = s.GetEmbeddingRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Deleting twice is fine
	require.NoError(t, s.DeleteEmbeddingRecord(ctx, "a1"))
}

func TestPutEmbeddingRecord_RequiresAlert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.PutEmbeddingRecord(ctx, nil), types.ErrEmptyAlertID)
	assert.Error(t, s.PutEmbeddingRecord(ctx, &types.EmbeddingRecord{AlertID: "orphan", Vector: []float32{1}}))
}

func TestDeleteAlert_CascadesEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertAlert(ctx, testAlert("a1", 0)))
	require.NoError(t, s.PutEmbeddingRecord(ctx, &types.EmbeddingRecord{AlertID: "a1", Vector: []float32{1}, SourceText: "x"}))

	require.NoError(t, s.DeleteAlert(ctx, "a1"))

	_, err := s.FetchAlert(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	rec, err := s.GetEmbeddingRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.ErrorIs(t, s.DeleteAlert(ctx, "a1"), ErrNotFound)
}

func TestGetStatus(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.TotalAlerts)
	assert.True(t, status.LatestIssued.IsZero())
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, BuildMode, status.BuildMode)

	geocoded := testAlert("a1", 0)
	geocoded.Position = &types.Coordinate{Latitude: -33.7, Longitude: 150.3}
	require.NoError(t, s.UpsertAlert(ctx, geocoded))
	latest := testAlert("a2", time.Hour)
	latest.Active = false
	require.NoError(t, s.UpsertAlert(ctx, latest))
	require.NoError(t, s.PutEmbeddingRecord(ctx, &types.EmbeddingRecord{AlertID: "a1", Vector: []float32{1}, SourceText: "x"}))

	status, err = s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalAlerts)
	assert.Equal(t, 1, status.ActiveAlerts)
	assert.Equal(t, 1, status.GeocodedAlerts)
	assert.Equal(t, 1, status.EmbeddingRecords)
	assert.True(t, latest.TimeIssued.Equal(status.LatestIssued))
	assert.Greater(t, status.DatabaseSizeMB, 0.0)
}

func TestVectorSerialization(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	out, err := deserializeVector(serializeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
