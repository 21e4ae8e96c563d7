package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6_371_000.0

// ErrInvalidInput is returned for non-finite or out-of-range coordinates.
var ErrInvalidInput = errors.New("geo: invalid input")

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports whether the coordinate is finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("coordinate must be finite: %w", ErrInvalidInput)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range: %w", c.Lat, ErrInvalidInput)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %v out of range: %w", c.Lon, ErrInvalidInput)
	}
	return nil
}

// ParseCoordinate converts decimal-degree strings into a validated Coordinate.
func ParseCoordinate(lat, lon string) (Coordinate, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude %q: %w", lat, ErrInvalidInput)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude %q: %w", lon, ErrInvalidInput)
	}
	c := Coordinate{Lat: la, Lon: lo}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Distance returns the great-circle distance in meters between a and b using
// the spherical law of cosines. Inputs are not validated.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	cosAngle := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
	// rounding can push the cosine just outside [-1, 1] for nearby points
	if cosAngle > 1 {
		cosAngle = 1
	} else if cosAngle < -1 {
		cosAngle = -1
	}
	return EarthRadiusMeters * math.Acos(cosAngle)
}

// FormatDistance renders a distance label such as "850 m" or "1.2 km".
func FormatDistance(meters float64) string {
	if meters < 0 || math.IsNaN(meters) {
		meters = 0
	}
	if rounded := math.Round(meters); rounded < 1000 {
		return strconv.FormatFloat(rounded, 'f', 0, 64) + " m"
	}
	return strconv.FormatFloat(meters/1000, 'f', 1, 64) + " km"
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
