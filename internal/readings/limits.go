package readings

import (
	"fmt"
	"unicode/utf8"

	"github.com/mlusby/temperature-monitor/internal/store"
	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

type Limits struct {
	MinTemperature      float64
	MaxTemperature      float64
	MaxSensorNameLength int
	MaxSessionIDLength  int
	MaxTimestampLength  int
}

func DefaultLimits() Limits {
	return Limits{
		MinTemperature:      -273.15,
		MaxTemperature:      1000,
		MaxSensorNameLength: 50,
		MaxSessionIDLength:  100,
		MaxTimestampLength:  store.MaxTimestampLength,
	}
}

// Check returns a range error for the first bound it breaks. Zero length
// limits are not enforced.
func (l Limits) Check(in ReadingInput) error {
	if in.Temperature != nil {
		t := *in.Temperature
		if t < l.MinTemperature || t > l.MaxTemperature {
			return apperrors.Range(fmt.Sprintf("Temperature must be between %g and %g", l.MinTemperature, l.MaxTemperature)).
				WithField("temperature", t)
		}
	}
	if l.MaxSensorNameLength > 0 && utf8.RuneCountInString(in.SensorName) > l.MaxSensorNameLength {
		return apperrors.Range(fmt.Sprintf("sensorName must be at most %d characters", l.MaxSensorNameLength))
	}
	if l.MaxSessionIDLength > 0 && utf8.RuneCountInString(in.SessionID) > l.MaxSessionIDLength {
		return apperrors.Range(fmt.Sprintf("sessionId must be at most %d characters", l.MaxSessionIDLength))
	}
	if l.MaxTimestampLength > 0 && utf8.RuneCountInString(in.Timestamp.String()) > l.MaxTimestampLength {
		return apperrors.Range(fmt.Sprintf("timestamp must be at most %d characters", l.MaxTimestampLength))
	}
	return nil
}
