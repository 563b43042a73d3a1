package models

// Control command names published on the control topic.
const (
	CommandTurnOn  = "turn_on"
	CommandTurnOff = "turn_off"
)

// Occupancy labels carried in control payloads.
const (
	OccupancyOccupied = "Occupied"
	OccupancyVacant   = "Vacant"
)

// ControlState is the single process-wide input to the control policy.
type ControlState struct {
	CurrentTemperature *float64 `json:"current_temperature"`
	Occupied           bool     `json:"occupied"`
	LastCommand        *bool    `json:"last_command"`
}

// ControlDecision is a change of the managed actuator's desired state.
type ControlDecision struct {
	TurnOn bool
	Reason string
}

// Command returns the wire name of the decision.
func (d ControlDecision) Command() string {
	if d.TurnOn {
		return CommandTurnOn
	}
	return CommandTurnOff
}

// ControlPayload is the JSON published on the control topic.
type ControlPayload struct {
	Command     string   `json:"command"`
	Reason      string   `json:"reason"`
	Timestamp   string   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Occupancy   string   `json:"occupancy"`
}

// Stats mirrors the data manager's status counters.
type Stats struct {
	DataRecords     int64 `json:"data_records"`
	Warnings        int64 `json:"warnings"`
	Alarms          int64 `json:"alarms"`
	ControlCommands int64 `json:"control_commands"`
}
