// internal/geocode/provider.go
//
// Coordinate provider abstraction used to seed round targets.
// The game never talks to a mapping API directly; it asks a Provider for a
// validated panorama location and treats failure as a retryable condition.

package geocode

import (
	"context"
	"errors"
	"sync"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
)

// ErrNoLocation is returned when no valid panorama location could be found
// within the provider's attempt budget. Callers may retry the whole
// operation later; it is never a terminal precondition failure.
var ErrNoLocation = errors.New("geocode: no valid location found")

// Provider yields validated panorama coordinates.
type Provider interface {
	ValidLocation(ctx context.Context) (geo.Point, error)
}

// Static serves points from a fixed list, round-robin. Used in tests and as
// an offline fallback when no API key is configured.
type Static struct {
	mu     sync.Mutex
	points []geo.Point
	next   int
}

// NewStatic constructs a Static provider over the given points.
func NewStatic(points ...geo.Point) *Static {
	return &Static{points: points}
}

// ValidLocation returns the next point in the list, wrapping around.
func (s *Static) ValidLocation(ctx context.Context) (geo.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.points) == 0 {
		return geo.Point{}, ErrNoLocation
	}
	p := s.points[s.next%len(s.points)]
	s.next++
	return p, nil
}

// Failing always reports ErrNoLocation. Test helper for upstream-down paths.
type Failing struct{}

func (Failing) ValidLocation(ctx context.Context) (geo.Point, error) {
	return geo.Point{}, ErrNoLocation
}
