package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"geoetl/internal/geo"
)

// mapsClientLike is the subset of *maps.Client used here; the seam allows
// injecting a fake for hermetic tests.
type mapsClientLike interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Google is a Geocoder backed by the Google Maps Geocoding API. Requests ask
// for rooftop street addresses only, matching what the address table stores.
type Google struct {
	client mapsClientLike
}

// NewGoogle builds a Google geocoder from an API key.
func NewGoogle(apiKey string) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google maps API key is required")
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Google{client: c}, nil
}

// ReverseGeocode resolves (lat, lng) to a rooftop street address. ok is
// false when the API returns no result or the result lacks components.
func (g *Google) ReverseGeocode(ctx context.Context, lat, lng float64) (geo.Address, bool, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:       &maps.LatLng{Lat: lat, Lng: lng},
		ResultType:   []string{"street_address"},
		LocationType: []maps.GeocodeAccuracy{"ROOFTOP"},
	})
	if err != nil {
		return geo.Address{}, false, fmt.Errorf("reverse geocode (%v, %v): %w", lat, lng, err)
	}
	if len(results) == 0 || len(results[0].AddressComponents) == 0 {
		return geo.Address{}, false, nil
	}

	addr := addressFromComponents(results[0].AddressComponents)
	addr.Latitude = lat
	addr.Longitude = lng
	return addr, true, nil
}

// VerifyKey issues one probe request so an invalid or quota-exhausted key
// fails the run up front instead of mid-pipeline. The probe point is the
// same one the original tooling used (Porto Alegre, RS).
func (g *Google) VerifyKey(ctx context.Context) error {
	_, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: 30.1084987, Lng: -51.3172284},
	})
	if err != nil {
		return fmt.Errorf("maps API key check: %w", err)
	}
	return nil
}
