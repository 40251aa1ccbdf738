package ctdf

import "math"

const earthRadiusMetres = 6371000.0

// Location is a GeoJSON style point, Coordinates are stored as [longitude, latitude]
type Location struct {
	Type        string    `json:"-" groups:"basic" bson:"type"`
	Coordinates []float64 `json:"coordinates" groups:"basic" bson:"coordinates"`
}

func NewLocation(lat float64, lon float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{lon, lat},
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[1]
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) < 1 {
		return 0
	}
	return l.Coordinates[0]
}

func (l Location) IsValid() bool {
	return len(l.Coordinates) == 2
}

// project returns x/y offsets in metres of l relative to origin using an equirectangular projection.
// Accurate enough for the few hundred metres that stop path segments span.
func (l Location) project(origin Location) (float64, float64) {
	latRad := origin.Latitude() * math.Pi / 180
	x := (l.Longitude() - origin.Longitude()) * math.Pi / 180 * math.Cos(latRad) * earthRadiusMetres
	y := (l.Latitude() - origin.Latitude()) * math.Pi / 180 * earthRadiusMetres

	return x, y
}

// Distance in metres between two locations
func (l Location) Distance(other Location) float64 {
	x, y := other.project(l)
	return math.Sqrt(x*x + y*y)
}

// Shameless taken 'inspiration' from https://stackoverflow.com/a/6853926
// Works in projected metres around a so the result is a distance in metres.
func (l Location) DistanceFromLine(a Location, b Location) float64 {
	param, C, D := l.lineParam(a, b)

	var xx, yy float64

	if param < 0 {
		xx, yy = 0, 0
	} else if param > 1 {
		xx, yy = C, D
	} else {
		xx = param * C
		yy = param * D
	}

	px, py := l.project(a)
	dx := px - xx
	dy := py - yy
	return math.Sqrt(dx*dx + dy*dy)
}

// lineParam returns how far along a->b the perpendicular foot of l falls (0..1 inside the
// segment) along with the projected segment components.
func (l Location) lineParam(a Location, b Location) (float64, float64, float64) {
	A, B := l.project(a)
	C, D := b.project(a)

	dot := A*C + B*D
	lenSq := C*C + D*D

	param := -1.0
	if lenSq != 0 {
		param = dot / lenSq
	}

	return param, C, D
}

// Vector is a directed straight segment of a stop path
type Vector struct {
	L1 Location
	L2 Location
}

func (v Vector) Length() float64 {
	return v.L1.Distance(v.L2)
}

// Heading in degrees clockwise from north, 0 <= heading < 360
func (v Vector) Heading() float64 {
	x, y := v.L2.project(v.L1)
	heading := math.Atan2(x, y) * 180 / math.Pi
	if heading < 0 {
		heading += 360
	}
	return heading
}

func (v Vector) DistanceToLocation(l Location) float64 {
	return l.DistanceFromLine(v.L1, v.L2)
}

// DistanceAlong is how far along the vector the closest point to l is, clamped to [0, Length]
func (v Vector) DistanceAlong(l Location) float64 {
	param, _, _ := l.lineParam(v.L1, v.L2)
	if param <= 0 {
		return 0
	}

	length := v.Length()
	if param >= 1 {
		return length
	}
	return param * length
}

// LocationAlong interpolates a location at distance metres from L1
func (v Vector) LocationAlong(distance float64) Location {
	length := v.Length()
	if length == 0 {
		return v.L1
	}
	fraction := math.Max(0, math.Min(1, distance/length))

	return NewLocation(
		v.L1.Latitude()+(v.L2.Latitude()-v.L1.Latitude())*fraction,
		v.L1.Longitude()+(v.L2.Longitude()-v.L1.Longitude())*fraction,
	)
}

// HeadingDifference is the smallest angle between two headings
func HeadingDifference(a float64, b float64) float64 {
	diff := math.Mod(math.Abs(a-b), 360)
	if diff > 180 {
		return 360 - diff
	}
	return diff
}
