// internal/geocode/streetview.go
//
// Street-view metadata client: discovers panorama locations by jittering
// probes around seed regions and asking the mapping API's metadata endpoint
// whether a panorama exists nearby.
//
// Behavior:
//   - Each call picks a random region, jitters a point inside its radius,
//     and queries the metadata endpoint (status "OK" means a panorama).
//   - Probes are bounded (maxAttempts); exhaustion surfaces ErrNoLocation.
//   - Validated points are cached; a fraction of calls are served from the
//     cache to keep API usage down, and the cache is the fallback when the
//     upstream is unreachable.

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
)

const (
	defaultMaxAttempts = 10
	defaultTimeout     = 5 * time.Second
	cacheLimit         = 512
	cacheReuseOdds     = 0.3 // fraction of calls answered from cache
	searchRadiusM      = 10000
)

// StreetView probes a street-view metadata endpoint for valid panoramas.
type StreetView struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	regions     []Region
	maxAttempts int

	mu    sync.Mutex
	rng   *rand.Rand
	cache []geo.Point
}

// Option tweaks a StreetView provider.
type Option func(*StreetView)

// WithHTTPClient overrides the HTTP client (tests use httptest's).
func WithHTTPClient(c *http.Client) Option {
	return func(sv *StreetView) { sv.client = c }
}

// WithMaxAttempts bounds the probes per ValidLocation call.
func WithMaxAttempts(n int) Option {
	return func(sv *StreetView) {
		if n > 0 {
			sv.maxAttempts = n
		}
	}
}

// WithSeed makes jitter deterministic for tests.
func WithSeed(seed int64) Option {
	return func(sv *StreetView) { sv.rng = rand.New(rand.NewSource(seed)) }
}

// NewStreetView constructs a provider over the given metadata endpoint.
// regions must be non-empty (see InitRegions / Regions).
func NewStreetView(baseURL, apiKey string, regions []Region, opts ...Option) *StreetView {
	sv := &StreetView{
		client:      &http.Client{Timeout: defaultTimeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		regions:     regions,
		maxAttempts: defaultMaxAttempts,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(sv)
	}
	return sv
}

// metadataRes is the subset of the metadata response we care about.
type metadataRes struct {
	Status   string `json:"status"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

// ValidLocation returns a coordinate with confirmed panorama coverage.
func (sv *StreetView) ValidLocation(ctx context.Context) (geo.Point, error) {
	if p, ok := sv.fromCache(); ok {
		return p, nil
	}

	var lastErr error
	for attempt := 0; attempt < sv.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return geo.Point{}, err
		}
		probe := sv.jitter()
		p, err := sv.lookup(ctx, probe)
		if err != nil {
			lastErr = err
			continue
		}
		sv.remember(p)
		return p, nil
	}

	// Upstream kept failing or returned no coverage; the cache is better
	// than aborting a round.
	sv.mu.Lock()
	n := len(sv.cache)
	var p geo.Point
	if n > 0 {
		p = sv.cache[sv.rng.Intn(n)]
	}
	sv.mu.Unlock()
	if n > 0 {
		return p, nil
	}
	if lastErr != nil {
		log.Warn().Err(lastErr).Int("attempts", sv.maxAttempts).Msg("panorama discovery exhausted")
	}
	return geo.Point{}, ErrNoLocation
}

// lookup asks the metadata endpoint about a single probe point.
func (sv *StreetView) lookup(ctx context.Context, probe geo.Point) (geo.Point, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", probe.Lat, probe.Lng))
	q.Set("radius", fmt.Sprintf("%d", searchRadiusM))
	if sv.apiKey != "" {
		q.Set("key", sv.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sv.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return geo.Point{}, err
	}
	res, err := sv.client.Do(req)
	if err != nil {
		return geo.Point{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("metadata endpoint: status %d", res.StatusCode)
	}
	var meta metadataRes
	if err := json.NewDecoder(res.Body).Decode(&meta); err != nil {
		return geo.Point{}, err
	}
	if meta.Status != "OK" {
		return geo.Point{}, fmt.Errorf("no panorama near probe: %s", meta.Status)
	}
	return geo.Point{Lat: meta.Location.Lat, Lng: meta.Location.Lng}, nil
}

// jitter picks a random region and a uniform random point inside its radius.
func (sv *StreetView) jitter() geo.Point {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	r := sv.regions[sv.rng.Intn(len(sv.regions))]
	// sqrt for uniform area density, not clustered at the center.
	dist := r.RadiusKm * math.Sqrt(sv.rng.Float64())
	bearing := sv.rng.Float64() * 2 * math.Pi

	dLat := (dist * math.Cos(bearing)) / 111.32
	dLng := (dist * math.Sin(bearing)) / (111.32 * math.Cos(r.Lat*math.Pi/180))
	return geo.Point{Lat: r.Lat + dLat, Lng: r.Lng + dLng}
}

func (sv *StreetView) fromCache() (geo.Point, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if len(sv.cache) == 0 || sv.rng.Float64() >= cacheReuseOdds {
		return geo.Point{}, false
	}
	return sv.cache[sv.rng.Intn(len(sv.cache))], true
}

func (sv *StreetView) remember(p geo.Point) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if len(sv.cache) >= cacheLimit {
		sv.cache = sv.cache[1:]
	}
	sv.cache = append(sv.cache, p)
}

// CacheSize reports how many validated points are held. Used by diagnostics.
func (sv *StreetView) CacheSize() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return len(sv.cache)
}
