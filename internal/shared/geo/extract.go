package geo

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// GeoJSON nests at most four levels (MultiPolygon); anything deeper is junk.
const maxGeoJSONDepth = 5

// ExtractPoint normalizes the coordinate shapes stored on trails and trail
// systems into a Point. Supported shapes:
//
//	Point / *Point
//	{"lat": 33.8, "lng": -84.6} (also latitude/longitude, lon)
//	{"type": "Point", "coordinates": [-84.6, 33.8]}   GeoJSON, lng first
//	any nested GeoJSON geometry                        first vertex
//	[33.8, -84.6]                                      flat array, lat first
//	raw JSON ([]byte, json.RawMessage, string) of any of the above
//
// It returns false when raw holds no usable coordinate.
func ExtractPoint(raw any) (Point, bool) {
	switch v := raw.(type) {
	case nil:
		return Point{}, false
	case Point:
		return v, v.Valid()
	case *Point:
		if v == nil {
			return Point{}, false
		}
		return *v, v.Valid()
	case []byte:
		return extractJSON(v)
	case json.RawMessage:
		return extractJSON(v)
	case string:
		return extractJSON([]byte(v))
	case []float64:
		return fromPair(v)
	case []any:
		return fromAnySlice(v, false)
	case map[string]any:
		return fromMap(v)
	}
	return Point{}, false
}

func extractJSON(b []byte) (Point, bool) {
	if len(strings.TrimSpace(string(b))) == 0 {
		return Point{}, false
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return Point{}, false
	}
	switch decoded.(type) {
	case []any, map[string]any:
		return ExtractPoint(decoded)
	}
	return Point{}, false
}

func fromPair(v []float64) (Point, bool) {
	if len(v) < 2 {
		return Point{}, false
	}
	p := Point{Lat: v[0], Lng: v[1]}
	return p, p.Valid()
}

func fromAnySlice(v []any, lngFirst bool) (Point, bool) {
	if len(v) < 2 {
		return Point{}, false
	}
	a, okA := toFloat(v[0])
	b, okB := toFloat(v[1])
	if !okA || !okB {
		return Point{}, false
	}
	p := Point{Lat: a, Lng: b}
	if lngFirst {
		p = Point{Lat: b, Lng: a}
	}
	return p, p.Valid()
}

func fromMap(m map[string]any) (Point, bool) {
	if coords, ok := m["coordinates"].([]any); ok {
		return firstVertex(coords)
	}
	if geometry, ok := m["geometry"].(map[string]any); ok {
		return fromMap(geometry)
	}

	lat, okLat := firstFloat(m, "lat", "latitude")
	lng, okLng := firstFloat(m, "lng", "lon", "longitude")
	if !okLat || !okLng {
		return Point{}, false
	}
	p := Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}

// firstVertex descends nested GeoJSON coordinates (LineString, Polygon,
// MultiPolygon...) to the first numeric [lng, lat] pair.
func firstVertex(coords []any) (Point, bool) {
	for depth := 0; depth < maxGeoJSONDepth; depth++ {
		if len(coords) == 0 {
			return Point{}, false
		}
		inner, ok := coords[0].([]any)
		if !ok {
			return fromAnySlice(coords, true)
		}
		coords = inner
	}
	return Point{}, false
}

func firstFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// FromColumns prefers explicit lat/lng columns and falls back to a stored
// coordinates document.
func FromColumns(lat, lng *float64, coordinates []byte) (Point, bool) {
	if lat != nil && lng != nil {
		if p := (Point{Lat: *lat, Lng: *lng}); p.Valid() {
			return p, true
		}
	}
	if len(coordinates) == 0 {
		return Point{}, false
	}
	return ExtractPoint(coordinates)
}
