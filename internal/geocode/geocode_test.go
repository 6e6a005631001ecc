package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
)

var testRegions = []Region{{Name: "paris", Lat: 48.8566, Lng: 2.3522, RadiusKm: 30}}

func metadataHandler(status string, hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   status,
			"location": map[string]float64{"lat": 48.86, "lng": 2.35},
		})
	}
}

func TestStreetView_ValidLocationOK(t *testing.T) {
	srv := httptest.NewServer(metadataHandler("OK", nil))
	defer srv.Close()

	sv := NewStreetView(srv.URL, "test-key", testRegions, WithSeed(1))
	p, err := sv.ValidLocation(context.Background())
	if err != nil {
		t.Fatalf("ValidLocation: %v", err)
	}
	if p.Lat != 48.86 || p.Lng != 2.35 {
		t.Errorf("got point %+v, want metadata location", p)
	}
	if sv.CacheSize() != 1 {
		t.Errorf("cache size %d, want 1", sv.CacheSize())
	}
}

func TestStreetView_ExhaustsAttemptsWithoutCoverage(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(metadataHandler("ZERO_RESULTS", &hits))
	defer srv.Close()

	sv := NewStreetView(srv.URL, "", testRegions, WithSeed(2), WithMaxAttempts(4))
	_, err := sv.ValidLocation(context.Background())
	if err != ErrNoLocation {
		t.Fatalf("err = %v, want ErrNoLocation", err)
	}
	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Errorf("upstream probed %d times, want 4", got)
	}
}

func TestStreetView_FallsBackToCacheWhenUpstreamDies(t *testing.T) {
	srv := httptest.NewServer(metadataHandler("OK", nil))

	sv := NewStreetView(srv.URL, "", testRegions, WithSeed(3), WithMaxAttempts(2))
	seeded, err := sv.ValidLocation(context.Background())
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	srv.Close() // all further probes fail at the transport level

	p, err := sv.ValidLocation(context.Background())
	if err != nil {
		t.Fatalf("cached call: %v", err)
	}
	if p != seeded {
		t.Errorf("fallback point %+v, want cached %+v", p, seeded)
	}
}

func TestStreetView_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(metadataHandler("ZERO_RESULTS", nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sv := NewStreetView(srv.URL, "", testRegions, WithSeed(4))
	if _, err := sv.ValidLocation(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStatic_RoundRobinAndEmpty(t *testing.T) {
	a := geo.Point{Lat: 1, Lng: 1}
	b := geo.Point{Lat: 2, Lng: 2}
	s := NewStatic(a, b)
	ctx := context.Background()

	p1, _ := s.ValidLocation(ctx)
	p2, _ := s.ValidLocation(ctx)
	p3, _ := s.ValidLocation(ctx)
	if p1 != a || p2 != b || p3 != a {
		t.Errorf("round robin got %v %v %v", p1, p2, p3)
	}

	empty := NewStatic()
	if _, err := empty.ValidLocation(ctx); err != ErrNoLocation {
		t.Errorf("empty static err = %v, want ErrNoLocation", err)
	}
}

func TestParseRegions(t *testing.T) {
	src := "# comment\nparis,48.85,2.35,30\n\nlondon, 51.5, -0.12, 35\n"
	got, err := parseRegions(src)
	if err != nil {
		t.Fatalf("parseRegions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d regions, want 2", len(got))
	}
	if got[1].Name != "london" || got[1].RadiusKm != 35 {
		t.Errorf("second region = %+v", got[1])
	}

	if _, err := parseRegions("bad,line\n"); err == nil {
		t.Error("expected error for malformed line")
	}
	if _, err := parseRegions("x,1,2,-5\n"); err == nil {
		t.Error("expected error for non-positive radius")
	}
}
