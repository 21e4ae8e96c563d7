package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/backend-grocery/internal/geo"
	"github.com/noah-isme/backend-grocery/internal/obs"
)

// ErrNoStores is returned by Nearest when the directory is empty.
var ErrNoStores = errors.New("stores: no stores available")

// Service answers store-locator queries against a Directory.
type Service struct {
	directory     Directory
	defaultRadius float64
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Directory Directory
	// DefaultRadius in meters applies when callers pass a non-positive radius.
	DefaultRadius float64
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Directory == nil {
		return nil, errors.New("stores: directory is required")
	}
	radius := cfg.DefaultRadius
	if radius <= 0 {
		radius = 10_000
	}
	return &Service{directory: cfg.Directory, defaultRadius: radius}, nil
}

// Nearest returns the store closest to origin.
func (s *Service) Nearest(ctx context.Context, origin geo.Coordinate) (geo.Match, error) {
	if err := origin.Validate(); err != nil {
		obs.IncStoreLookup("nearest", "invalid")
		return geo.Match{}, err
	}
	candidates, err := s.directory.List(ctx)
	if err != nil {
		obs.IncStoreLookup("nearest", "error")
		return geo.Match{}, fmt.Errorf("load directory: %w", err)
	}
	m, ok := geo.SelectNearest(origin, candidates)
	if !ok {
		obs.IncStoreLookup("nearest", "empty")
		return geo.Match{}, ErrNoStores
	}
	obs.IncStoreLookup("nearest", "ok")
	return m, nil
}

// WithinRadius returns stores within radiusMeters of origin. Results keep
// directory order unless sorted is set.
func (s *Service) WithinRadius(ctx context.Context, origin geo.Coordinate, radiusMeters float64, sorted bool) ([]geo.Match, error) {
	if err := origin.Validate(); err != nil {
		obs.IncStoreLookup("radius", "invalid")
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = s.defaultRadius
	}
	candidates, err := s.directory.List(ctx)
	if err != nil {
		obs.IncStoreLookup("radius", "error")
		return nil, fmt.Errorf("load directory: %w", err)
	}
	matches := geo.SelectWithinRadius(origin, candidates, radiusMeters)
	if sorted {
		geo.SortByDistance(matches)
	}
	if len(matches) == 0 {
		obs.IncStoreLookup("radius", "empty")
	} else {
		obs.IncStoreLookup("radius", "ok")
	}
	return matches, nil
}

// DefaultRadius reports the radius used when none is given.
func (s *Service) DefaultRadius() float64 {
	return s.defaultRadius
}
