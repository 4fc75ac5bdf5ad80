package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Bengaluru city centre to Kempegowda airport, roughly 27.5km.
	got := HaversineKm(12.9758, 77.6045, 13.1986, 77.7066)
	if math.Abs(got-27.2) > 1.5 {
		t.Errorf("expected ~27km, got %.2f", got)
	}

	if d := HaversineKm(12.97, 77.60, 12.97, 77.60); d != 0 {
		t.Errorf("expected zero distance for same point, got %f", d)
	}
}

func TestSortByDistance_StableOnTies(t *testing.T) {
	type tagged struct {
		name string
		dist float64
	}
	items := []tagged{
		{"c", 3},
		{"a1", 1},
		{"b", 2},
		{"a2", 1},
	}

	SortByDistance(items, func(i tagged) float64 { return i.dist })

	want := []string{"a1", "a2", "b", "c"}
	for i, w := range want {
		if items[i].name != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, items[i].name)
		}
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidLatitude(12.97) || !ValidLongitude(77.60) {
		t.Error("expected valid Bengaluru coordinates")
	}
	if ValidLatitude(91) || ValidLatitude(-91) {
		t.Error("latitude outside [-90, 90] must be invalid")
	}
	if ValidLongitude(181) || ValidLongitude(-181) {
		t.Error("longitude outside [-180, 180] must be invalid")
	}
}
