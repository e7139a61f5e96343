package dto

import (
	"encoding/json"
)

// GeoPoint is a resolved coordinate pair for an entity.
type GeoPoint struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Confidence float64 `json:"confidence"`
	PlaceName  string  `json:"place_name"`
	// Raw is the geocoder's result object verbatim, kept for audit.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// GeocodeResponse mirrors the place-search geocoder response body.
type GeocodeResponse struct {
	Status  string          `json:"status"`
	Results []GeocodeResult `json:"results"`
}

// GeocodeResult is one candidate place in a GeocodeResponse.
type GeocodeResult struct {
	Name     string `json:"name"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Confidence float64 `json:"confidence"`
}
