package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

func newTestNominatim(t *testing.T, handler http.HandlerFunc) *NominatimClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNominatimClient(NominatimConfig{
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
	})
}

func TestNominatimForward(t *testing.T) {
	var calls atomic.Int32
	client := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Parramatta NSW", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[{"lat":"-33.8150","lon":"151.0011","display_name":"Parramatta"}]`))
	})

	c, err := client.Forward(context.Background(), "Parramatta NSW")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, -33.815, c.Latitude, 1e-9)
	assert.InDelta(t, 151.0011, c.Longitude, 1e-9)

	// Second lookup is served from the cache
	_, err = client.Forward(context.Background(), "parramatta nsw")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNominatimForwardNoResult(t *testing.T) {
	client := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	c, err := client.Forward(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = client.Forward(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNominatimForwardBackendError(t *testing.T) {
	client := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := client.Forward(context.Background(), "Sydney")
	assert.ErrorIs(t, err, ErrGeocoderFailed)
}

func TestNominatimReverse(t *testing.T) {
	client := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"display_name": "Town Hall, Sydney NSW 2000, Australia",
			"address": {"city": "Sydney", "state": "New South Wales", "country": "Australia", "postcode": "2000"}
		}`))
	})

	info, err := client.Reverse(context.Background(), sydney)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Sydney", info.Suburb)
	assert.Equal(t, "New South Wales", info.State)
	assert.Equal(t, "2000", info.Postcode)
}

func TestNominatimReverseUnableToGeocode(t *testing.T) {
	client := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	})

	info, err := client.Reverse(context.Background(), types.Coordinate{Latitude: 0, Longitude: -140})
	require.NoError(t, err)
	assert.Nil(t, info)

	_, err = client.Reverse(context.Background(), types.Coordinate{Latitude: 95})
	assert.ErrorIs(t, err, types.ErrInvalidCoordinate)
}

func TestNominatimContextCancelled(t *testing.T) {
	client := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Forward(ctx, "Sydney")
	assert.Error(t, err)
}
