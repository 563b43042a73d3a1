package main

import (
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"time"
)

const isoLayout = "2006-01-02T15:04:05.000000"

// DHTPayload is what a DHT sensor publishes.
type DHTPayload struct {
	DeviceType   string  `json:"device_type"`
	DeviceID     string  `json:"device_id"`
	Timestamp    string  `json:"timestamp"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	UnitTemp     string  `json:"unit_temp"`
	UnitHumidity string  `json:"unit_humidity"`
}

// OccupancyPayload is what the occupancy sensor publishes.
type OccupancyPayload struct {
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id"`
	Timestamp  string `json:"timestamp"`
	Occupancy  string `json:"occupancy"`
	State      string `json:"state"`
}

// ControllerPayload is the AC controller's state report.
type ControllerPayload struct {
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id"`
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	State      string `json:"state"`
	Value      int    `json:"value"`
}

// MockDataGenerator produces office telemetry around a drifting base temperature.
type MockDataGenerator struct {
	deviceID     string
	spikeProb    float64
	baseTemp     float64
	baseHumidity float64
	occupied     bool
	rnd          *rand.Rand
	now          func() time.Time
}

func NewMockDataGenerator(deviceID string, spikeProb float64, seed int64) *MockDataGenerator {
	return &MockDataGenerator{
		deviceID:     deviceID,
		spikeProb:    spikeProb,
		baseTemp:     24.0,
		baseHumidity: 50.0,
		occupied:     true,
		rnd:          rand.New(rand.NewSource(seed)),
		now:          time.Now,
	}
}

// Reading returns the next DHT reading. Spikes land outside the default alarm band.
func (m *MockDataGenerator) Reading() DHTPayload {
	temperature := m.baseTemp + m.rnd.Float64()*6.0 - 3.0
	humidity := m.baseHumidity + m.rnd.Float64()*10.0 - 5.0

	if m.rnd.Float64() < m.spikeProb {
		if m.rnd.Float64() < 0.5 {
			temperature = 33.0 + m.rnd.Float64()*5.0
		} else {
			humidity = 86.0 + m.rnd.Float64()*8.0
		}
	}

	return DHTPayload{
		DeviceType:   "DHT_Sensor",
		DeviceID:     m.deviceID,
		Timestamp:    m.now().Format(isoLayout),
		Temperature:  math.Round(temperature*10) / 10,
		Humidity:     math.Round(humidity*10) / 10,
		UnitTemp:     "Celsius",
		UnitHumidity: "Percent",
	}
}

// ToggleOccupancy flips the office state and returns the matching report.
func (m *MockDataGenerator) ToggleOccupancy() OccupancyPayload {
	m.occupied = !m.occupied
	p := OccupancyPayload{
		DeviceType: "Occupancy_Sensor",
		DeviceID:   m.deviceID + "-occupancy",
		Timestamp:  m.now().Format(isoLayout),
		Occupancy:  "Vacant",
		State:      "OFF",
	}
	if m.occupied {
		p.Occupancy = "Occupied"
		p.State = "ON"
	}
	return p
}

// EchoControl answers a control command with an AC controller report.
// ok is false when the payload is not a recognizable command.
func (m *MockDataGenerator) EchoControl(payload []byte) (ControllerPayload, bool) {
	var cmd struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return ControllerPayload{}, false
	}
	var on bool
	switch strings.ToLower(cmd.Command) {
	case "on", "turn_on", "ac_on":
		on = true
	case "off", "turn_off", "ac_off":
	default:
		return ControllerPayload{}, false
	}

	p := ControllerPayload{
		DeviceType: "AC_Controller",
		DeviceID:   m.deviceID + "-ac",
		Timestamp:  m.now().Format(isoLayout),
		Action:     "turn_off",
		State:      "OFF",
	}
	if on {
		p.Action, p.State, p.Value = "turn_on", "ON", 1
	}
	return p, true
}
