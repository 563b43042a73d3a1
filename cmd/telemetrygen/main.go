package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	rps           = flag.Float64("rps", 0.2, "Sensor readings per second")
	deviceID      = flag.String("device", "dht-mock-001", "Device ID for mock data")
	spike         = flag.Float64("spike", 0.1, "Probability of an out-of-range reading (0.0-1.0)")
	occupancyFlip = flag.Duration("occupancy", 2*time.Minute, "Interval between occupancy flips (0 disables)")
	echo          = flag.Bool("echo", true, "Answer control commands as the AC controller")
	mqttBroker    = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser      = flag.String("user", "", "MQTT username")
	mqttPass      = flag.String("pass", "", "MQTT password")
	namespace     = flag.String("namespace", "smart_office", "Topic namespace")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ns := strings.Trim(*namespace, "/")
	sensorTopic := ns + "/sensors/dht"
	occupancyTopic := ns + "/sensors/occupancy"
	controlTopic := ns + "/actuators/ac_controller/control"
	reportTopic := ns + "/actuators/ac_controller/state"

	logger.Info("Telemetry generator started",
		zap.String("device_id", *deviceID),
		zap.Float64("rps", *rps),
		zap.Float64("spike_probability", *spike),
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("namespace", ns))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("%s-generator-%s", *deviceID, uuid.NewString()[:8]))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	gen := NewMockDataGenerator(*deviceID, *spike, time.Now().UnixNano())

	publish := func(client mqtt.Client, topic string, v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			logger.Error("Failed to marshal payload", zap.Error(err))
			return
		}
		token := client.Publish(topic, 1, false, data)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			logger.Error("Failed to publish MQTT message", zap.String("topic", topic), zap.Error(token.Error()))
			return
		}
		logger.Debug("Published MQTT message", zap.String("topic", topic), zap.ByteString("payload", data))
	}

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
		if !*echo {
			return
		}
		client.Subscribe(controlTopic, 1, func(c mqtt.Client, m mqtt.Message) {
			report, ok := gen.EchoControl(m.Payload())
			if !ok {
				logger.Warn("Ignoring control message", zap.ByteString("payload", m.Payload()))
				return
			}
			logger.Info("AC controller switched", zap.String("state", report.State))
			publish(c, reportTopic, report)
		})
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer client.Disconnect(250)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	interval := time.Duration(float64(time.Second) / *rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var occupancyC <-chan time.Time
	if *occupancyFlip > 0 {
		occupancyTicker := time.NewTicker(*occupancyFlip)
		defer occupancyTicker.Stop()
		occupancyC = occupancyTicker.C
	}

	publish(client, occupancyTopic, gen.ToggleOccupancy())
	publish(client, occupancyTopic, gen.ToggleOccupancy())

	count := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down generator", zap.Int("readings_published", count))
			return
		case <-ticker.C:
			publish(client, sensorTopic, gen.Reading())
			count++
			if count%100 == 0 {
				logger.Info("Readings published", zap.Int("count", count))
			}
		case <-occupancyC:
			p := gen.ToggleOccupancy()
			logger.Info("Occupancy changed", zap.String("occupancy", p.Occupancy))
			publish(client, occupancyTopic, p)
		}
	}
}
