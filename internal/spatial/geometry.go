package spatial

import "math"

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371010.0

// shortHop is the coordinate delta, in degrees, below which Distance uses
// the flat approximation (about 22km).
const shortHop = 0.2

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Box is an axis-aligned rectangle in rtree order: Min and Max are
// {lng, lat} corners.
type Box struct {
	Min [2]float64
	Max [2]float64
}

// Distance returns the great-circle distance between two points in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dLambda := radians(lng2 - lng1)

	if math.Abs(lat2-lat1) < shortHop && math.Abs(lng2-lng1) < shortHop {
		x := dLambda * math.Cos((phi1+phi2)/2)
		y := phi2 - phi1
		return EarthRadius * math.Hypot(x, y)
	}

	// Vincenty formula on the sphere.
	sinDL, cosDL := math.Sincos(dLambda)
	sin1, cos1 := math.Sincos(phi1)
	sin2, cos2 := math.Sincos(phi2)
	num := math.Hypot(cos2*sinDL, cos1*sin2-sin1*cos2*cosDL)
	den := sin1*sin2 + cos1*cos2*cosDL
	return EarthRadius * math.Atan2(num, den)
}

// Around returns the box enclosing a circle of radius meters.
func Around(lat, lng, radius float64) Box {
	dLat := degrees(radius / EarthRadius)
	dLng := degrees(radius / (EarthRadius * math.Cos(radians(lat))))
	return Box{
		Min: [2]float64{lng - dLng, lat - dLat},
		Max: [2]float64{lng + dLng, lat + dLat},
	}
}
