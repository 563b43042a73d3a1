package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"smartoffice/config"
	"smartoffice/models"

	"go.uber.org/zap"
)

type fakeStore struct {
	mu         sync.Mutex
	readings   []models.SensorReading
	reports    []models.ActuatorReport
	alerts     []models.Alert
	systemLogs []models.SystemLogEntry
	alertErr   error
	sensorErr  error
}

func (s *fakeStore) InsertSensorReading(_ context.Context, r models.SensorReading) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sensorErr != nil {
		return 0, s.sensorErr
	}
	s.readings = append(s.readings, r)
	return int64(len(s.readings)), nil
}

func (s *fakeStore) InsertActuatorReport(_ context.Context, r models.ActuatorReport) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return int64(len(s.reports)), nil
}

func (s *fakeStore) InsertAlert(_ context.Context, a models.Alert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertErr != nil {
		return 0, s.alertErr
	}
	s.alerts = append(s.alerts, a)
	return int64(len(s.alerts)), nil
}

func (s *fakeStore) InsertSystemLog(_ context.Context, e models.SystemLogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemLogs = append(s.systemLogs, e)
	return int64(len(s.systemLogs)), nil
}

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return p.err
}

func (p *fakePublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		WarningsTopic:         "smart_office/alerts/warnings",
		AlarmsTopic:           "smart_office/alerts/alarms",
		ControlTopic:          "smart_office/actuators/ac_controller/control",
		OperationTimeout:      time.Second,
		TemperatureThresholds: models.ThresholdSet{LowAlarm: 15, LowWarning: 18, HighWarning: 28, HighAlarm: 32},
		HumidityThresholds:    models.ThresholdSet{LowAlarm: 25, LowWarning: 35, HighWarning: 70, HighAlarm: 85},
		SensorMarkers:         []string{"DHT_Sensor"},
		OccupancyMarkers:      []string{"Occupancy_Sensor"},
		ControllerMarkers:     []string{"AC_Controller"},
		ActuatorMarkers:       []string{"Actuator", "button", "relay"},
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeStore, *fakePublisher) {
	t.Helper()
	store := &fakeStore{}
	pub := &fakePublisher{}
	return NewCoordinator(testConfig(), store, pub, zap.NewNop()), store, pub
}

func controlCommands(t *testing.T, pub *fakePublisher) []models.ControlPayload {
	t.Helper()
	var out []models.ControlPayload
	for _, m := range pub.on(testConfig().ControlTopic) {
		var p models.ControlPayload
		if err := json.Unmarshal(m.payload, &p); err != nil {
			t.Fatalf("control payload: %v", err)
		}
		out = append(out, p)
	}
	return out
}

const occupiedMsg = `{"device_type":"Occupancy_Sensor","device_id":"occ-1","occupancy":"Occupied","state":"ON"}`

func TestOnMessage_DHTWarningAndTurnOn(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)

	c.OnMessage("smart_office/sensors/occupancy", []byte(occupiedMsg))
	if n := len(controlCommands(t, pub)); n != 0 {
		t.Fatalf("occupancy without temperature must not command, got %d", n)
	}

	c.OnMessage("smart_office/sensors/dht", []byte(`{"device_type":"DHT_Sensor","temperature":29.0,"humidity":50}`))

	if len(store.readings) != 1 {
		t.Fatalf("want 1 sensor reading, got %d", len(store.readings))
	}
	if len(store.alerts) != 1 {
		t.Fatalf("want 1 alert, got %d", len(store.alerts))
	}
	a := store.alerts[0]
	if a.AlertType != models.QuantityTemperature || a.Severity != models.SeverityWarning || a.Threshold != 28 {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.Message != "WARNING: Temperature 29.0°C is approaching limits" {
		t.Errorf("message: %q", a.Message)
	}

	warnings := pub.on(testConfig().WarningsTopic)
	if len(warnings) != 1 {
		t.Fatalf("want 1 published warning, got %d", len(warnings))
	}
	var payload models.AlertPayload
	if err := json.Unmarshal(warnings[0].payload, &payload); err != nil {
		t.Fatalf("alert payload: %v", err)
	}
	if payload.AlertID == nil || *payload.AlertID != 1 || payload.DeviceID != "unknown" {
		t.Errorf("unexpected alert payload %+v", payload)
	}
	if len(pub.on(testConfig().AlarmsTopic)) != 0 {
		t.Error("no alarm expected")
	}

	cmds := controlCommands(t, pub)
	if len(cmds) != 1 || cmds[0].Command != models.CommandTurnOn {
		t.Fatalf("want one turn_on, got %+v", cmds)
	}
	if cmds[0].Occupancy != models.OccupancyOccupied || cmds[0].Temperature == nil || *cmds[0].Temperature != 29 {
		t.Errorf("unexpected control payload %+v", cmds[0])
	}

	stats := c.Stats()
	if stats.DataRecords != 1 || stats.Warnings != 1 || stats.Alarms != 0 || stats.ControlCommands != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestOnMessage_Hysteresis(t *testing.T) {
	t.Parallel()
	c, _, pub := newTestCoordinator(t)
	c.OnMessage("o", []byte(occupiedMsg))

	want := []int{1, 1, 2}
	for i, temp := range []string{"30", "25", "17"} {
		c.OnMessage("smart_office/sensors/dht", []byte(`{"device_type":"DHT_Sensor","temperature":`+temp+`}`))
		if got := len(controlCommands(t, pub)); got != want[i] {
			t.Fatalf("after %s: want %d commands, got %d", temp, want[i], got)
		}
	}
	cmds := controlCommands(t, pub)
	if cmds[0].Command != models.CommandTurnOn || cmds[1].Command != models.CommandTurnOff {
		t.Fatalf("want [turn_on turn_off], got %+v", cmds)
	}
	if cmds[1].Reason != "Temperature 17.0°C is comfortable - AC turned OFF" {
		t.Errorf("reason: %q", cmds[1].Reason)
	}
}

func TestOnMessage_VacantTurnsOffOnce(t *testing.T) {
	t.Parallel()
	c, _, pub := newTestCoordinator(t)

	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","temperature":35}`))
	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","temperature":40}`))

	cmds := controlCommands(t, pub)
	if len(cmds) != 1 || cmds[0].Command != models.CommandTurnOff {
		t.Fatalf("want a single turn_off, got %+v", cmds)
	}
	if cmds[0].Reason != "Office is vacant - AC turned OFF for energy saving" || cmds[0].Occupancy != models.OccupancyVacant {
		t.Errorf("unexpected payload %+v", cmds[0])
	}
}

func TestOnMessage_ControllerReportNeverCommands(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)
	c.OnMessage("o", []byte(occupiedMsg))
	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","temperature":30}`))
	before := len(controlCommands(t, pub))

	c.OnMessage("smart_office/actuators/ac_controller", []byte(`{"device_type":"AC_Controller","device_id":"ac-1","state":"OFF","action":"turn_off"}`))

	if got := len(controlCommands(t, pub)); got != before {
		t.Fatalf("controller report issued a command: %d -> %d", before, got)
	}
	if len(store.reports) != 1 || store.reports[0].State != "OFF" {
		t.Fatalf("controller report not persisted: %+v", store.reports)
	}
	if snap := c.ControlSnapshot(); snap.LastCommand == nil || !*snap.LastCommand {
		t.Errorf("last command changed: %+v", snap)
	}
}

func TestOnMessage_DecodeFailure(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)

	c.OnMessage("smart_office/raw", []byte("hello world"))

	if len(store.systemLogs) != 1 {
		t.Fatalf("want exactly one system log, got %d", len(store.systemLogs))
	}
	if got := store.systemLogs[0].Message; got != "Received text message on topic smart_office/raw: hello world" {
		t.Errorf("message: %q", got)
	}
	if len(store.readings)+len(store.reports)+len(store.alerts) != 0 || len(pub.msgs) != 0 {
		t.Fatal("decode failure must not produce records or publishes")
	}
}

func TestOnMessage_AlertInsertFailureStillPublishes(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)
	store.alertErr = errors.New("disk full")
	c.OnMessage("o", []byte(occupiedMsg))

	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","device_id":"dht-1","temperature":33}`))

	alarms := pub.on(testConfig().AlarmsTopic)
	if len(alarms) != 1 {
		t.Fatalf("want 1 alarm published, got %d", len(alarms))
	}
	var payload models.AlertPayload
	if err := json.Unmarshal(alarms[0].payload, &payload); err != nil {
		t.Fatalf("alert payload: %v", err)
	}
	if payload.AlertID != nil {
		t.Errorf("alert_id should be null, got %d", *payload.AlertID)
	}
	if len(controlCommands(t, pub)) != 1 {
		t.Error("control command must still be published")
	}
}

func TestOnMessage_PublishFailureKeepsLastCommand(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)
	pub.err = errors.New("broker down")
	c.OnMessage("o", []byte(occupiedMsg))
	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","temperature":29}`))
	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","temperature":29.5}`))

	if got := len(controlCommands(t, pub)); got != 1 {
		t.Fatalf("failed command must not be replayed, got %d attempts", got)
	}
	if len(store.readings) != 2 {
		t.Errorf("readings persisted regardless of publish: %d", len(store.readings))
	}
}

func TestOnMessage_SameReadingTwice(t *testing.T) {
	t.Parallel()
	c, store, _ := newTestCoordinator(t)
	msg := []byte(`{"device_type":"DHT_Sensor","device_id":"dht-1","humidity":90,"timestamp":"2024-01-01T10:00:00"}`)

	c.OnMessage("d", msg)
	c.OnMessage("d", msg)

	if len(store.readings) != 2 || len(store.alerts) != 2 {
		t.Fatalf("want 2 readings and 2 alerts, got %d and %d", len(store.readings), len(store.alerts))
	}
	a, b := store.alerts[0], store.alerts[1]
	if a.Severity != b.Severity || a.Threshold != b.Threshold || a.Severity != models.SeverityAlarm {
		t.Fatalf("decisions differ: %+v vs %+v", a, b)
	}
}

func TestOnMessage_ProcessedLogAlwaysWritten(t *testing.T) {
	t.Parallel()
	c, store, _ := newTestCoordinator(t)

	c.OnMessage("smart_office/misc", []byte(`{"device_type":"Weather_Station","wind":3}`))

	if len(store.systemLogs) != 2 {
		t.Fatalf("want generic entry plus processed entry, got %d", len(store.systemLogs))
	}
	last := store.systemLogs[1]
	if last.Component != "DataCollector" || last.Message != "Received message from Weather_Station on topic smart_office/misc" {
		t.Errorf("unexpected processed log %+v", last)
	}
}

func TestUpdateThresholds(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestCoordinator(t)

	bad := models.ThresholdSet{LowAlarm: 20, LowWarning: 18, HighWarning: 28, HighAlarm: 32}
	if err := c.UpdateThresholds(models.QuantityTemperature, bad); !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
	if got := c.Thresholds()[models.QuantityTemperature]; got.LowAlarm != 15 {
		t.Fatalf("previous thresholds must stay active, got %+v", got)
	}

	good := models.ThresholdSet{LowAlarm: 10, LowWarning: 20, HighWarning: 25, HighAlarm: 30}
	if err := c.UpdateThresholds(models.QuantityTemperature, good); err != nil {
		t.Fatalf("UpdateThresholds: %v", err)
	}
	if got := c.Thresholds()[models.QuantityTemperature]; got != good {
		t.Fatalf("want %+v, got %+v", good, got)
	}
}

type recordingHooks struct {
	alerts   []models.Alert
	readings []models.SensorReading
	devices  []string
}

func (h *recordingHooks) Enqueue(a models.Alert) bool {
	h.alerts = append(h.alerts, a)
	return true
}

func (h *recordingHooks) Add(r models.SensorReading) bool {
	h.readings = append(h.readings, r)
	return true
}

func (h *recordingHooks) Observe(deviceID, _, _ string, _ time.Time) {
	h.devices = append(h.devices, deviceID)
}

func TestOnMessage_Hooks(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestCoordinator(t)
	h := &recordingHooks{}
	c.SetHooks(CoordinatorHooks{Alerts: h, Readings: h, Devices: h})

	c.OnMessage("d", []byte(`{"device_type":"DHT_Sensor","device_id":"dht-7","temperature":14}`))

	if len(h.alerts) != 1 || h.alerts[0].Severity != models.SeverityAlarm || h.alerts[0].ID != 1 {
		t.Errorf("alert hook: %+v", h.alerts)
	}
	if len(h.readings) != 1 || h.readings[0].ID != 1 {
		t.Errorf("reading hook: %+v", h.readings)
	}
	if len(h.devices) != 1 || h.devices[0] != "dht-7" {
		t.Errorf("device hook: %v", h.devices)
	}
}

func TestStart_DrainsUntilClosed(t *testing.T) {
	t.Parallel()
	c, store, _ := newTestCoordinator(t)

	in := make(chan models.InboundMessage, 3)
	for i := 0; i < 3; i++ {
		in <- models.InboundMessage{Topic: "d", Payload: []byte(`{"device_type":"DHT_Sensor","humidity":50}`)}
	}
	close(in)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background(), in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after channel close")
	}
	if len(store.readings) != 3 {
		t.Fatalf("want 3 readings, got %d", len(store.readings))
	}
}

func TestOnMessage_SkipsOwnPublications(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)
	cfg := testConfig()

	c.OnMessage(cfg.ControlTopic, []byte(`{"command":"turn_on","reason":"x","temperature":30,"occupancy":"Occupied"}`))
	c.OnMessage(cfg.AlarmsTopic, []byte(`{"alert_id":1,"severity":"ALARM","alert_type":"Temperature","value":35}`))

	if len(store.readings) != 0 || len(store.systemLogs) != 0 || len(pub.msgs) != 0 {
		t.Fatalf("own publications were ingested: readings=%d logs=%d published=%d",
			len(store.readings), len(store.systemLogs), len(pub.msgs))
	}
}

func TestOnMessage_ConcurrentDeliveriesSerialized(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		occupied bool
		temps    []string
		want     string
		lastOn   bool
	}{
		{name: "occupied and warm", occupied: true, temps: []string{"29", "30.5", "31"}, want: models.CommandTurnOn, lastOn: true},
		{name: "vacant", occupied: false, temps: []string{"35", "22", "40"}, want: models.CommandTurnOff, lastOn: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, store, pub := newTestCoordinator(t)
			if tc.occupied {
				c.OnMessage("o", []byte(occupiedMsg))
			}

			const workers = 100
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				temp := tc.temps[i%len(tc.temps)]
				go func() {
					defer wg.Done()
					c.OnMessage("smart_office/sensors/dht", []byte(`{"device_type":"DHT_Sensor","temperature":`+temp+`}`))
				}()
			}
			wg.Wait()

			cmds := controlCommands(t, pub)
			if len(cmds) != 1 || cmds[0].Command != tc.want {
				t.Fatalf("want exactly one %s, got %+v", tc.want, cmds)
			}
			snap := c.ControlSnapshot()
			if snap.LastCommand == nil || *snap.LastCommand != tc.lastOn {
				t.Fatalf("last command: want %v, got %v", tc.lastOn, snap.LastCommand)
			}
			stats := c.Stats()
			if stats.ControlCommands != 1 || stats.DataRecords != workers {
				t.Errorf("unexpected stats %+v", stats)
			}
			store.mu.Lock()
			n := len(store.readings)
			store.mu.Unlock()
			if n != workers {
				t.Errorf("want %d readings, got %d", workers, n)
			}
		})
	}
}

func TestOnMessage_SensorInsertFailureContinues(t *testing.T) {
	t.Parallel()
	c, store, pub := newTestCoordinator(t)
	store.sensorErr = errors.New("disk full")

	c.OnMessage("o", []byte(occupiedMsg))
	c.OnMessage("smart_office/sensors/dht", []byte(`{"device_type":"DHT_Sensor","temperature":33}`))

	if len(store.readings) != 0 {
		t.Fatalf("want no stored readings, got %d", len(store.readings))
	}
	if len(store.alerts) != 1 || store.alerts[0].Severity != models.SeverityAlarm {
		t.Fatalf("want one stored alarm, got %+v", store.alerts)
	}
	if n := len(pub.on(testConfig().AlarmsTopic)); n != 1 {
		t.Fatalf("want 1 published alarm, got %d", n)
	}
	cmds := controlCommands(t, pub)
	if len(cmds) != 1 || cmds[0].Command != models.CommandTurnOn {
		t.Fatalf("want one turn_on, got %+v", cmds)
	}
	if stats := c.Stats(); stats.DataRecords != 0 || stats.Alarms != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
