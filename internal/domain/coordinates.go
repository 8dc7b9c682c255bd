package domain

import "math"

// Mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Immutable geographic coordinates (latitude, longitude) in degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Return coordinates as [lon, lat] for GeoJSON-style consumers.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// DistanceKm returns the haversine great-circle distance to other.
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	return HaversineKm(c.Lat, c.Lon, other.Lat, other.Lon)
}

// HaversineKm computes the great-circle distance between two points in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
