package pricing

import (
	"math"

	"github.com/richxcame/ridecore/pkg/models"
)

// FloorMode selects how the minimum fare is applied.
type FloorMode int

const (
	// FloorPerVehicle scales the minimum fare by the tier multiplier. Used for quotes and requests.
	FloorPerVehicle FloorMode = iota
	// FloorFlat applies the unscaled minimum fare. Used when a fare is recomputed at acceptance.
	FloorFlat
)

// FareOptions adjusts a single computation.
type FareOptions struct {
	SurgeOverride *float64
	Floor         FloorMode
}

// ComputeFare prices a trip under cfg. The result is rounded to the nearest 0.5
// and is never below the selected floor.
func ComputeFare(distanceKm float64, durationMin int, vehicleType models.VehicleType, cfg Config, opts FareOptions) float64 {
	fare := cfg.BaseFare + distanceKm*cfg.PricePerKm + float64(durationMin)*cfg.PricePerMinute

	multiplier := cfg.VehicleMultipliers.For(vehicleType)
	if multiplier <= 0 {
		multiplier = 1.0
	}
	fare *= multiplier

	surge, active := cfg.SurgeMultiplier, cfg.IsSurgeActive
	if opts.SurgeOverride != nil {
		surge, active = *opts.SurgeOverride, true
	}
	if active && surge > 1 {
		fare *= surge
	}

	floor := cfg.MinFare
	if opts.Floor == FloorPerVehicle {
		floor *= multiplier
	}
	rounded := roundToHalf(math.Max(fare, floor))
	if rounded < floor {
		rounded = math.Ceil(floor*2) / 2
	}
	return rounded
}

func roundToHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

// CancellationFee is the informational fee reported when a ride is cancelled.
// It is never charged.
func CancellationFee(cancelledBy models.CancelledBy, status models.RideStatus) float64 {
	if cancelledBy != models.CancelledByPassenger {
		return 0
	}
	switch status {
	case models.RideStatusAccepted:
		return 5
	case models.RideStatusStarted:
		return 20
	default:
		return 0
	}
}
