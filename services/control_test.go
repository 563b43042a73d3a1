package services

import (
	"testing"

	"smartoffice/models"
)

func ptrF(v float64) *float64 { return &v }
func ptrB(v bool) *bool       { return &v }

func TestDecideControl(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		state  models.ControlState
		ok     bool
		turnOn bool
	}{
		{name: "no temperature", state: models.ControlState{Occupied: true}, ok: false},
		{name: "no temperature vacant", state: models.ControlState{}, ok: false},
		{name: "vacant hot first command", state: models.ControlState{CurrentTemperature: ptrF(40)}, ok: true, turnOn: false},
		{name: "vacant already off", state: models.ControlState{CurrentTemperature: ptrF(40), LastCommand: ptrB(false)}, ok: false},
		{name: "vacant after on", state: models.ControlState{CurrentTemperature: ptrF(22), LastCommand: ptrB(true)}, ok: true, turnOn: false},
		{name: "occupied hot", state: models.ControlState{CurrentTemperature: ptrF(28.5), Occupied: true}, ok: true, turnOn: true},
		{name: "occupied at high warning is band", state: models.ControlState{CurrentTemperature: ptrF(28), Occupied: true}, ok: false},
		{name: "occupied hot already on", state: models.ControlState{CurrentTemperature: ptrF(30), Occupied: true, LastCommand: ptrB(true)}, ok: false},
		{name: "occupied cold after on", state: models.ControlState{CurrentTemperature: ptrF(17), Occupied: true, LastCommand: ptrB(true)}, ok: true, turnOn: false},
		{name: "occupied band after on", state: models.ControlState{CurrentTemperature: ptrF(24), Occupied: true, LastCommand: ptrB(true)}, ok: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, ok := DecideControl(tc.state, tempSet)
			if ok != tc.ok {
				t.Fatalf("ok: want %v, got %v (%+v)", tc.ok, ok, d)
			}
			if ok && d.TurnOn != tc.turnOn {
				t.Fatalf("turnOn: want %v, got %v", tc.turnOn, d.TurnOn)
			}
			if ok && d.Reason == "" {
				t.Fatal("decision without reason")
			}
		})
	}
}

func TestDecideControl_VacantIgnoresTemperature(t *testing.T) {
	t.Parallel()

	for temp := -10.0; temp <= 50; temp += 2.5 {
		d, ok := DecideControl(models.ControlState{CurrentTemperature: ptrF(temp)}, tempSet)
		if !ok || d.TurnOn || d.Command() != models.CommandTurnOff {
			t.Fatalf("temperature %v: want turn_off, got %+v ok=%v", temp, d, ok)
		}
	}
}
