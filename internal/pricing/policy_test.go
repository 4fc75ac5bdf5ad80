package pricing

import (
	"testing"

	"dispatch/internal/domain"
)

func TestFixedPolicy_SameFareForAnyRoute(t *testing.T) {
	policy := FixedPolicy{BaseFare: 100}

	a := policy.Quote(domain.Location{Lat: 12.97, Lng: 77.60}, domain.Location{Lat: 13.19, Lng: 77.70})
	b := policy.Quote(domain.Location{}, domain.Location{})
	if a != 100 || b != 100 {
		t.Errorf("expected 100 for all routes, got %.2f and %.2f", a, b)
	}
}

func TestDistancePolicy_Deterministic(t *testing.T) {
	policy := DistancePolicy{PerKm: 12, MinimumFare: 50}
	pickup := domain.Location{Lat: 12.9758, Lng: 77.6045}
	dest := domain.Location{Lat: 13.1986, Lng: 77.7066}

	first := policy.Quote(pickup, dest)
	second := policy.Quote(pickup, dest)
	if first != second {
		t.Errorf("quote must be reproducible, got %.4f then %.4f", first, second)
	}
	if first <= 50 {
		t.Errorf("expected distance fare above the floor for a ~27km route, got %.2f", first)
	}
}

func TestDistancePolicy_FloorAndMissingCoordinates(t *testing.T) {
	policy := DistancePolicy{PerKm: 12, MinimumFare: 50}

	// A few hundred metres stays at the minimum fare.
	short := policy.Quote(
		domain.Location{Lat: 12.9758, Lng: 77.6045},
		domain.Location{Lat: 12.9760, Lng: 77.6050},
	)
	if short != 50 {
		t.Errorf("expected floor fare 50, got %.2f", short)
	}

	// Text-only locations fall back to the minimum.
	textOnly := policy.Quote(domain.Location{Text: "MG Road"}, domain.Location{Text: "Airport"})
	if textOnly != 50 {
		t.Errorf("expected minimum fare without coordinates, got %.2f", textOnly)
	}
}
