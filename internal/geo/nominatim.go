package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// Geocoding defaults
const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultUserAgent    = "alertwatch-mcp/1.0"

	// Nominatim's usage policy allows at most one request per second
	DefaultRequestsPerSecond = 1.0
	DefaultGeocodeCacheSize  = 4096
)

// ErrGeocoderFailed is returned when the geocoding backend cannot be reached or errors
var ErrGeocoderFailed = errors.New("geocoder failed")

// AddressInfo is the result of a reverse geocode
type AddressInfo struct {
	Address  string `json:"address"`
	Suburb   string `json:"suburb,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

// Geocoder converts between free-text addresses and coordinates.
// A nil result with a nil error means the backend had no answer.
type Geocoder interface {
	Forward(ctx context.Context, address string) (*types.Coordinate, error)
	Reverse(ctx context.Context, c types.Coordinate) (*AddressInfo, error)
}

// NominatimConfig configures a NominatimClient
type NominatimConfig struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	CacheSize         int
	Timeout           time.Duration
}

// NominatimClient implements Geocoder against an OpenStreetMap Nominatim server
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *lru.Cache[string, types.Coordinate]
}

// NewNominatimClient creates a rate-limited Nominatim client
func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNominatimURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultGeocodeCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cache, err := lru.New[string, types.Coordinate](cfg.CacheSize)
	if err != nil {
		// Only fails for non-positive sizes
		panic(fmt.Sprintf("failed to create geocode cache: %v", err))
	}

	return &NominatimClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cache:      cache,
	}
}

// Forward geocodes a free-text address to its best-match coordinate
func (n *NominatimClient) Forward(ctx context.Context, address string) (*types.Coordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	key := strings.ToLower(address)
	if c, ok := n.cache.Get(key); ok {
		return &c, nil
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := n.get(ctx, "/search", q, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parse lat %q: %v", ErrGeocoderFailed, places[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parse lon %q: %v", ErrGeocoderFailed, places[0].Lon, err)
	}

	c := types.Coordinate{Latitude: lat, Longitude: lng}
	if !c.Valid() {
		return nil, fmt.Errorf("%w: backend returned %v", types.ErrInvalidCoordinate, c)
	}
	n.cache.Add(key, c)
	return &c, nil
}

// Reverse resolves a coordinate to address details
func (n *NominatimClient) Reverse(ctx context.Context, c types.Coordinate) (*AddressInfo, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidCoordinate, c)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
	q.Set("format", "json")

	var resp struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
		Address     struct {
			Suburb   string `json:"suburb"`
			Town     string `json:"town"`
			City     string `json:"city"`
			State    string `json:"state"`
			Country  string `json:"country"`
			Postcode string `json:"postcode"`
		} `json:"address"`
	}
	if err := n.get(ctx, "/reverse", q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" || resp.DisplayName == "" {
		return nil, nil
	}

	suburb := firstNonEmpty(resp.Address.Suburb, resp.Address.Town, resp.Address.City)
	return &AddressInfo{
		Address:  resp.DisplayName,
		Suburb:   suburb,
		State:    resp.Address.State,
		Country:  resp.Address.Country,
		Postcode: resp.Address.Postcode,
	}, nil
}

func (n *NominatimClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGeocoderFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrGeocoderFailed, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGeocoderFailed, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
