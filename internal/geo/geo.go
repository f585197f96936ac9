// Package geo defines the domain model shared by the pipeline stages: the
// coordinates read from CSV input, the postal addresses resolved for them,
// and the coordinate+address pair persisted to storage.
//
// The types are intentionally plain structs with no behavior beyond
// validation helpers, so that parsers, geocoders, and storage backends can
// exchange them without coupling to each other.
package geo

// Coordinate is a single geographical point read from the input CSV.
// DistanceKM and BearingDegrees are optional columns carried through to
// storage when present in the source file.
type Coordinate struct {
	Latitude       float64
	Longitude      float64
	DistanceKM     float64
	BearingDegrees float64
}

// Valid reports whether the coordinate lies within the WGS84 domain.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Address is a structured postal address resolved from a coordinate via
// reverse geocoding. Latitude/Longitude echo the coordinate the address was
// resolved for, so a row in the addresses table is self-contained.
type Address struct {
	StreetNumber string
	StreetName   string
	Neighborhood string
	City         string
	State        string
	Country      string
	PostalCode   string
	Latitude     float64
	Longitude    float64
}

// Complete reports whether every address component is populated. Only
// complete addresses are persisted; partial geocoder results are counted as
// unresolved by the pipeline.
func (a Address) Complete() bool {
	return a.StreetNumber != "" &&
		a.StreetName != "" &&
		a.Neighborhood != "" &&
		a.City != "" &&
		a.State != "" &&
		a.Country != "" &&
		a.PostalCode != ""
}

// Placement pairs an input coordinate with the address resolved for it. It is
// the unit of work handed to the storage layer.
type Placement struct {
	Coordinate Coordinate
	Address    Address
}
