package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestDistanceMilesProperties(t *testing.T) {
	a := Point{Lat: 33.80, Lng: -84.60}
	b := Point{Lat: 34.05, Lng: -84.10}

	if d := DistanceMiles(a, a); d != 0 {
		t.Fatalf("expected zero distance to self, got %v", d)
	}
	if math.Abs(DistanceMiles(a, b)-DistanceMiles(b, a)) > 1e-9 {
		t.Fatalf("distance not symmetric")
	}
	// Atlanta area sanity: roughly 33 miles apart.
	if d := DistanceMiles(a, b); d < 25 || d > 40 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestSanitizeRadius(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		name string
		in   *float64
		want int
	}{
		{"unset", nil, 25},
		{"zero", f(0), 25},
		{"negative", f(-5), 25},
		{"nan", f(math.NaN()), 25},
		{"inf", f(math.Inf(1)), 25},
		{"too large", f(10000), 500},
		{"rounded down", f(10.4), 10},
		{"rounded up", f(10.5), 11},
		{"tiny", f(0.2), 1},
		{"lower bound", f(1), 1},
	}
	for _, tc := range cases {
		got := SanitizeRadius(tc.in)
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
		if got < MinRadiusMiles || got > MaxRadiusMiles {
			t.Fatalf("%s: %d outside bounds", tc.name, got)
		}
	}
}

func TestIsEligible(t *testing.T) {
	ride := Point{Lat: 33.80, Lng: -84.60}
	nearby := &Point{Lat: 33.81, Lng: -84.61}
	r25, r1 := 25.0, 1.0

	if !IsEligible(nearby, ride, &r25) {
		t.Fatalf("expected nearby rider eligible at 25 miles")
	}
	if IsEligible(nearby, ride, &r1) {
		t.Fatalf("expected nearby rider ineligible at 1 mile")
	}
	if IsEligible(nil, ride, &r25) {
		t.Fatalf("rider without location must never be eligible")
	}
	same := ride
	if !IsEligible(&same, ride, &r1) {
		t.Fatalf("rider at the ride point must be eligible")
	}
	if !IsEligible(nearby, ride, nil) {
		t.Fatalf("unset radius should default to 25 miles")
	}
}

func TestPointValid(t *testing.T) {
	if (Point{Lat: 91, Lng: 0}).Valid() {
		t.Fatalf("latitude out of range should be invalid")
	}
	if (Point{Lat: 0, Lng: math.NaN()}).Valid() {
		t.Fatalf("NaN should be invalid")
	}
	if !(Point{Lat: -33.9, Lng: 151.2}).Valid() {
		t.Fatalf("expected valid point")
	}
}
