package services

import (
	"context"
	"math"

	"github.com/tuinawx/booking-api/models"
)

// DistanceEstimator prices the technician's trip to the service address.
type DistanceEstimator interface {
	DistanceFee(ctx context.Context, technician *models.Technician, address models.AddressSnapshot) (int64, error)
}

// NoDistanceFee charges nothing for travel.
type NoDistanceFee struct{}

// DistanceFee implements DistanceEstimator.
func (NoDistanceFee) DistanceFee(context.Context, *models.Technician, models.AddressSnapshot) (int64, error) {
	return 0, nil
}

const earthRadiusKm = 6371.0

// HaversineDistanceFee charges FeePerKm for every started kilometre beyond
// FreeKm of great-circle distance. Missing coordinates cost nothing.
type HaversineDistanceFee struct {
	FreeKm   float64
	FeePerKm int64
}

// DistanceFee implements DistanceEstimator.
func (h HaversineDistanceFee) DistanceFee(_ context.Context, technician *models.Technician, address models.AddressSnapshot) (int64, error) {
	if h.FeePerKm <= 0 || technician == nil {
		return 0, nil
	}
	if technician.Latitude == nil || technician.Longitude == nil || address.Latitude == nil || address.Longitude == nil {
		return 0, nil
	}

	km := haversineKm(*technician.Latitude, *technician.Longitude, *address.Latitude, *address.Longitude)
	extra := km - h.FreeKm
	if extra <= 0 {
		return 0, nil
	}
	return int64(math.Ceil(extra)) * h.FeePerKm, nil
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
