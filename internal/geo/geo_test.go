package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/geo"
)

var (
	monas      = geo.Coordinate{Lat: -6.175392, Lon: 106.827153}
	blokM      = geo.Coordinate{Lat: -6.244300, Lon: 106.800400}
	bandung    = geo.Coordinate{Lat: -6.917464, Lon: 107.619123}
	surabaya   = geo.Coordinate{Lat: -7.257472, Lon: 112.752090}
	antipodeSW = geo.Coordinate{Lat: 6.175392, Lon: -73.172847}
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	for _, c := range []geo.Coordinate{monas, bandung, {Lat: 90, Lon: 0}, {Lat: -90, Lon: 180}, {}} {
		require.Zero(t, geo.Distance(c, c))
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][2]geo.Coordinate{
		{monas, blokM},
		{monas, surabaya},
		{bandung, antipodeSW},
		{{Lat: 89.9, Lon: -179.9}, {Lat: -89.9, Lon: 179.9}},
	}
	for _, p := range pairs {
		ab := geo.Distance(p[0], p[1])
		ba := geo.Distance(p[1], p[0])
		require.InEpsilon(t, ab, ba, 1e-6)
		require.Greater(t, ab, 0.0)
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// Monas to Bandung is roughly 120 km in a straight line.
	d := geo.Distance(monas, bandung)
	require.InDelta(t, 120_000, d, 2_000)

	// Quarter of the equator.
	q := geo.Distance(geo.Coordinate{Lat: 0, Lon: 0}, geo.Coordinate{Lat: 0, Lon: 90})
	require.InDelta(t, math.Pi/2*geo.EarthRadiusMeters, q, 1)

	// Antipodal points never produce NaN.
	anti := geo.Distance(monas, antipodeSW)
	require.False(t, math.IsNaN(anti))
	require.InDelta(t, math.Pi*geo.EarthRadiusMeters, anti, 1)
}

func TestCoordinateValidate(t *testing.T) {
	require.NoError(t, monas.Validate())
	require.NoError(t, geo.Coordinate{Lat: -90, Lon: 180}.Validate())

	bad := []geo.Coordinate{
		{Lat: 90.0001, Lon: 0},
		{Lat: 0, Lon: -180.5},
		{Lat: math.NaN(), Lon: 0},
		{Lat: 0, Lon: math.Inf(1)},
	}
	for _, c := range bad {
		require.ErrorIs(t, c.Validate(), geo.ErrInvalidInput)
	}
}

func TestParseCoordinate(t *testing.T) {
	c, err := geo.ParseCoordinate(" -6.175392 ", "106.827153")
	require.NoError(t, err)
	require.Equal(t, monas, c)

	_, err = geo.ParseCoordinate("abc", "106.8")
	require.ErrorIs(t, err, geo.ErrInvalidInput)

	_, err = geo.ParseCoordinate("-95", "106.8")
	require.ErrorIs(t, err, geo.ErrInvalidInput)

	_, err = geo.ParseCoordinate("NaN", "0")
	require.ErrorIs(t, err, geo.ErrInvalidInput)
}

func TestFormatDistance(t *testing.T) {
	require.Equal(t, "0 m", geo.FormatDistance(0))
	require.Equal(t, "850 m", geo.FormatDistance(849.6))
	require.Equal(t, "1.2 km", geo.FormatDistance(1_234))
	require.Equal(t, "116.0 km", geo.FormatDistance(116_000))
	require.Equal(t, "0 m", geo.FormatDistance(-5))
	require.Equal(t, "1.0 km", geo.FormatDistance(999.7))
}
