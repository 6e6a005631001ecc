// internal/geocode/regions.go
//
// Seed regions for panorama discovery.
//
// Responsibilities:
//   - Load candidate regions (center + radius) from an environment-provided
//     file or fall back to embedded defaults.
//   - Supply the StreetView provider with areas dense enough in panoramas
//     that jittered probes usually land on coverage.
//
// File format (one region per line, # comments allowed):
//   name,lat,lng,radius_km
//
// Environment variables:
//   GEO_REGIONS_FILE=/path/to/regions.txt
//
// Initialization is run once (sync.Once).

package geocode

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

//go:embed default_regions.txt
var embeddedRegions string

// Region is a circular area to probe for panoramas.
type Region struct {
	Name     string
	Lat      float64
	Lng      float64
	RadiusKm float64
}

var (
	regionsOnce sync.Once
	regions     []Region
	regionsErr  error
)

// InitRegions loads the region list exactly once.
// Returns an error if the resulting list is empty.
func InitRegions() error {
	regionsOnce.Do(func() {
		src := embeddedRegions
		if path := os.Getenv("GEO_REGIONS_FILE"); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				regionsErr = fmt.Errorf("read regions file: %w", err)
				return
			}
			src = string(b)
		}
		list, err := parseRegions(src)
		if err != nil {
			regionsErr = err
			return
		}
		if len(list) == 0 {
			regionsErr = errors.New("geocode: regions list is empty")
			return
		}
		regions = list
	})
	return regionsErr
}

// Regions returns the loaded region list. InitRegions must have succeeded.
func Regions() []Region { return regions }

func parseRegions(src string) ([]Region, error) {
	var out []Region
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("geocode: bad region line %q", line)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("geocode: bad lat in %q", line)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("geocode: bad lng in %q", line)
		}
		radius, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || radius <= 0 {
			return nil, fmt.Errorf("geocode: bad radius in %q", line)
		}
		out = append(out, Region{
			Name:     strings.TrimSpace(parts[0]),
			Lat:      lat,
			Lng:      lng,
			RadiusKm: radius,
		})
	}
	return out, sc.Err()
}
