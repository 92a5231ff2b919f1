package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"low", SeverityLow, false},
		{"Medium", SeverityMedium, false},
		{" HIGH ", SeverityHigh, false},
		{"", SeverityMedium, false},
		{"catastrophic", SeverityMedium, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownSeverity))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, SeverityLow, SeverityMedium)
	assert.Less(t, SeverityMedium, SeverityHigh)
}

func TestSeverityJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"high"}`, string(b))

	var out struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"low"}`), &out))
	assert.Equal(t, SeverityLow, out.S)
}

func TestCoordinateValid(t *testing.T) {
	tests := []struct {
		name  string
		coord Coordinate
		want  bool
	}{
		{"sydney", Coordinate{-33.8688, 151.2093}, true},
		{"poles and antimeridian", Coordinate{90, -180}, true},
		{"latitude out of range", Coordinate{90.5, 0}, false},
		{"longitude out of range", Coordinate{0, 181}, false},
		{"nan", Coordinate{math.NaN(), 0}, false},
		{"inf", Coordinate{0, math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coord.Valid())
		})
	}
}

func TestAlertValidate(t *testing.T) {
	valid := Alert{ID: "a1", Title: "Bushfire"}
	assert.NoError(t, valid.Validate())

	noID := Alert{Title: "Bushfire"}
	assert.ErrorIs(t, noID.Validate(), ErrEmptyAlertID)

	noTitle := Alert{ID: "a1"}
	assert.ErrorIs(t, noTitle.Validate(), ErrEmptyTitle)

	badPos := Alert{ID: "a1", Title: "x", Position: &Coordinate{Latitude: 200}}
	assert.ErrorIs(t, badPos.Validate(), ErrInvalidCoordinate)
}

func TestAlertHasPosition(t *testing.T) {
	a := Alert{}
	assert.False(t, a.HasPosition())

	a.Position = &Coordinate{Latitude: math.NaN()}
	assert.False(t, a.HasPosition())

	a.Position = &Coordinate{Latitude: -37.81, Longitude: 144.96}
	assert.True(t, a.HasPosition())
}

func TestEmbeddingRecordClone(t *testing.T) {
	rec := &EmbeddingRecord{AlertID: "a1", Vector: []float32{1, 2, 3}, SourceText: "x"}
	cp := rec.Clone()
	cp.Vector[0] = 99

	assert.Equal(t, float32(1), rec.Vector[0])
	assert.Equal(t, rec.AlertID, cp.AlertID)

	var nilRec *EmbeddingRecord
	assert.Nil(t, nilRec.Clone())
}
