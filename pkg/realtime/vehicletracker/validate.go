package vehicletracker

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
)

// ValidationError is returned by Submit for reports that never reach the state machine
type ValidationError struct {
	VehicleID string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid AVL report for vehicle %q: %s", e.VehicleID, e.Reason)
}

// Validator checks a report against its struct tags and the configured AVL bounds
type Validator struct {
	Config config.AvlConfig

	validate *validator.Validate
}

func NewValidator(cfg config.AvlConfig) *Validator {
	return &Validator{
		Config:   cfg,
		validate: validator.New(),
	}
}

func (v *Validator) Validate(report *ctdf.AvlReport, now time.Time) error {
	if err := v.validate.Struct(report); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			reasons := make([]string, 0, len(fieldErrors))
			for _, fieldError := range fieldErrors {
				reasons = append(reasons, fmt.Sprintf("%s failed %s", fieldError.Field(), fieldError.Tag()))
			}
			return &ValidationError{VehicleID: report.VehicleID, Reason: strings.Join(reasons, ", ")}
		}
		return &ValidationError{VehicleID: report.VehicleID, Reason: err.Error()}
	}

	if !report.Location.IsValid() {
		return &ValidationError{VehicleID: report.VehicleID, Reason: "missing location"}
	}

	lat, lon := report.Location.Latitude(), report.Location.Longitude()
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return &ValidationError{VehicleID: report.VehicleID, Reason: fmt.Sprintf("location %f,%f is not a number", lat, lon)}
	}
	if lat < v.Config.MinLatitude || lat > v.Config.MaxLatitude {
		return &ValidationError{VehicleID: report.VehicleID, Reason: fmt.Sprintf("latitude %f outside [%f, %f]", lat, v.Config.MinLatitude, v.Config.MaxLatitude)}
	}
	if lon < v.Config.MinLongitude || lon > v.Config.MaxLongitude {
		return &ValidationError{VehicleID: report.VehicleID, Reason: fmt.Sprintf("longitude %f outside [%f, %f]", lon, v.Config.MinLongitude, v.Config.MaxLongitude)}
	}

	if age := now.Sub(report.Time); age > time.Duration(v.Config.MaxAgeSecs)*time.Second {
		return &ValidationError{VehicleID: report.VehicleID, Reason: fmt.Sprintf("report is %s old", age)}
	}
	if ahead := report.Time.Sub(now); ahead > time.Duration(v.Config.MaxFutureSecs)*time.Second {
		return &ValidationError{VehicleID: report.VehicleID, Reason: fmt.Sprintf("report is %s in the future", ahead)}
	}

	if report.Speed != nil && *report.Speed > v.Config.MaxSpeed {
		return &ValidationError{VehicleID: report.VehicleID, Reason: fmt.Sprintf("speed %.1fm/s above %.1fm/s", *report.Speed, v.Config.MaxSpeed)}
	}

	return nil
}
