// Package geocode resolves geographical coordinates into postal addresses.
//
// The Geocoder interface keeps the pipeline independent of the concrete
// provider; the Google Maps implementation lives in google.go behind a small
// client seam so it can be unit-tested without network access.
package geocode

import (
	"context"

	"googlemaps.github.io/maps"

	"geoetl/internal/geo"
)

// Geocoder resolves a coordinate to a street address.
type Geocoder interface {
	// ReverseGeocode returns the address for (lat, lng). ok is false when
	// the provider has no rooftop street address for the point; that is not
	// an error, the pipeline counts the row as unresolved and moves on.
	ReverseGeocode(ctx context.Context, lat, lng float64) (addr geo.Address, ok bool, err error)
}

// Address component types returned by the Google geocoding API.
const (
	compCountry      = "country"
	compState        = "administrative_area_level_1"
	compCity         = "administrative_area_level_2"
	compNeighborhood = "sublocality_level_1"
	compStreetNumber = "street_number"
	compRoute        = "route"
	compPostalCode   = "postal_code"
)

// addressFromComponents maps Google address components onto a geo.Address.
// State uses the short name (e.g. "RS"); everything else the long name.
// Components of unrecognized types are ignored.
func addressFromComponents(components []maps.AddressComponent) geo.Address {
	var a geo.Address
	for _, comp := range components {
		for _, typ := range comp.Types {
			switch typ {
			case compCountry:
				a.Country = comp.LongName
			case compState:
				a.State = comp.ShortName
			case compCity:
				a.City = comp.LongName
			case compNeighborhood:
				a.Neighborhood = comp.LongName
			case compStreetNumber:
				a.StreetNumber = comp.LongName
			case compRoute:
				a.StreetName = comp.LongName
			case compPostalCode:
				a.PostalCode = comp.LongName
			}
		}
	}
	return a
}
