package main

import (
	"testing"
	"time"
)

func fixedGenerator(spike float64) *MockDataGenerator {
	g := NewMockDataGenerator("dht-test", spike, 1)
	g.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return g
}

func TestReading_WithinNormalBand(t *testing.T) {
	g := fixedGenerator(0)
	for i := 0; i < 200; i++ {
		r := g.Reading()
		if r.Temperature < 21 || r.Temperature > 27 {
			t.Fatalf("temperature %v outside normal band", r.Temperature)
		}
		if r.Humidity < 45 || r.Humidity > 55 {
			t.Fatalf("humidity %v outside normal band", r.Humidity)
		}
		if r.DeviceType != "DHT_Sensor" || r.Timestamp != "2024-05-01T09:30:00.000000" {
			t.Fatalf("unexpected payload %+v", r)
		}
	}
}

func TestReading_SpikesLeaveSafeRange(t *testing.T) {
	g := fixedGenerator(1)
	for i := 0; i < 50; i++ {
		r := g.Reading()
		if r.Temperature <= 32 && r.Humidity <= 85 {
			t.Fatalf("spike reading stayed in range: %+v", r)
		}
	}
}

func TestToggleOccupancy(t *testing.T) {
	g := fixedGenerator(0)
	first := g.ToggleOccupancy()
	second := g.ToggleOccupancy()
	if first.Occupancy != "Vacant" || first.State != "OFF" {
		t.Errorf("first = %+v", first)
	}
	if second.Occupancy != "Occupied" || second.State != "ON" {
		t.Errorf("second = %+v", second)
	}
}

func TestEchoControl(t *testing.T) {
	g := fixedGenerator(0)
	cases := []struct {
		payload string
		ok      bool
		state   string
	}{
		{`{"command":"turn_on"}`, true, "ON"},
		{`{"command":"TURN_OFF"}`, true, "OFF"},
		{`{"command":"ac_on"}`, true, "ON"},
		{`{"command":"dance"}`, false, ""},
		{`not json`, false, ""},
	}
	for _, c := range cases {
		p, ok := g.EchoControl([]byte(c.payload))
		if ok != c.ok || p.State != c.state {
			t.Errorf("EchoControl(%s) = %+v, %v", c.payload, p, ok)
		}
		if ok && p.DeviceType != "AC_Controller" {
			t.Errorf("device type %q", p.DeviceType)
		}
	}
}
