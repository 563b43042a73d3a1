package services

import (
	"fmt"

	"smartoffice/models"
)

// DecideControl derives the desired climate actuator state. It only returns a decision
// when that state differs from the last command issued; otherwise ok is false.
//
// Rules, first match wins: vacant turns the AC off; above the high warning bound turns it
// on; below the low warning bound turns it off. Between the warning bounds nothing changes.
func DecideControl(state models.ControlState, temp models.ThresholdSet) (models.ControlDecision, bool) {
	if state.CurrentTemperature == nil {
		return models.ControlDecision{}, false
	}
	t := *state.CurrentTemperature

	var d models.ControlDecision
	switch {
	case !state.Occupied:
		d = models.ControlDecision{TurnOn: false, Reason: "Office is vacant - AC turned OFF for energy saving"}
	case t > temp.HighWarning:
		d = models.ControlDecision{TurnOn: true, Reason: fmt.Sprintf("Temperature %.1f°C is high and office is occupied - AC turned ON", t)}
	case t < temp.LowWarning:
		d = models.ControlDecision{TurnOn: false, Reason: fmt.Sprintf("Temperature %.1f°C is comfortable - AC turned OFF", t)}
	default:
		return models.ControlDecision{}, false
	}

	if state.LastCommand != nil && *state.LastCommand == d.TurnOn {
		return models.ControlDecision{}, false
	}
	return d, true
}
