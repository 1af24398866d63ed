package validation

import (
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/richxcame/ridecore/pkg/models"
)

var registerOnce sync.Once

// RegisterGinValidators adds the ride tags to gin's binding validator. Safe to
// call from every request path.
func RegisterGinValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			Register(v)
		}
	})
}

// Register installs the custom tags on v.
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("latitude", validateLatitude)
	_ = v.RegisterValidation("longitude", validateLongitude)
	_ = v.RegisterValidation("vehicle_type", validateVehicleType)
	_ = v.RegisterValidation("payment_method", validatePaymentMethod)
}

// validateLatitude checks if latitude is within valid range (-90 to 90)
func validateLatitude(fl validator.FieldLevel) bool {
	lat, ok := floatField(fl)
	return ok && lat >= -90.0 && lat <= 90.0
}

// validateLongitude checks if longitude is within valid range (-180 to 180)
func validateLongitude(fl validator.FieldLevel) bool {
	lon, ok := floatField(fl)
	return ok && lon >= -180.0 && lon <= 180.0
}

func validateVehicleType(fl validator.FieldLevel) bool {
	return models.VehicleType(fl.Field().String()).Valid()
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return models.PaymentMethod(fl.Field().String()).Valid()
}

func floatField(fl validator.FieldLevel) (float64, bool) {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return f.Float(), true
	default:
		return 0, false
	}
}
