package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "smartoffice_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	messagesProcessed *prometheus.CounterVec
	processLatency    prometheus.Histogram
	decodeErrors      prometheus.Counter
	persistErrors     *prometheus.CounterVec
	publishErrors     *prometheus.CounterVec

	alertsTotal     *prometheus.CounterVec
	controlCommands *prometheus.CounterVec

	inboundDrops    *prometheus.CounterVec
	notifyFailures  *prometheus.CounterVec
	mirrorBatches   *prometheus.CounterVec
	devicesTimedOut prometheus.Gauge
)

// Init registers the ingestion metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		messagesProcessed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_processed_total",
				Help: "Total ingested bus messages by classified kind",
			},
			[]string{"kind"},
		)
		processLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "message_process_seconds",
				Help:    "Time spent handling one inbound message",
				Buckets: prometheus.DefBuckets,
			},
		)
		decodeErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "decode_errors_total",
				Help: "Total payloads that were not JSON objects",
			},
		)
		persistErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persistence_errors_total",
				Help: "Total failed store writes by record kind",
			},
			[]string{"record"},
		)
		publishErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_errors_total",
				Help: "Total failed bus publishes by destination",
			},
			[]string{"destination"},
		)

		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total alerts raised by quantity and severity",
			},
			[]string{"type", "severity"},
		)
		controlCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "control_commands_total",
				Help: "Total climate control commands issued",
			},
			[]string{"command"},
		)

		inboundDrops = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inbound_dropped_total",
				Help: "Total inbound messages dropped because the queue stayed full",
			},
			[]string{"transport"},
		)
		notifyFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notification_failures_total",
				Help: "Total failed alert notifications by channel",
			},
			[]string{"channel"},
		)
		mirrorBatches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mirror_batches_total",
				Help: "Total reading mirror flushes by result",
			},
			[]string{"result"},
		)
		devicesTimedOut = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices_timed_out",
				Help: "Devices that stopped reporting",
			},
		)

		prometheus.MustRegister(
			messagesProcessed,
			processLatency,
			decodeErrors,
			persistErrors,
			publishErrors,
			alertsTotal,
			controlCommands,
			inboundDrops,
			notifyFailures,
			mirrorBatches,
			devicesTimedOut,
		)
	})
}

// ObserveMessage records one handled message and how long it took.
func ObserveMessage(kind string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if messagesProcessed != nil {
		messagesProcessed.WithLabelValues(kind).Inc()
	}
	if processLatency != nil {
		processLatency.Observe(duration.Seconds())
	}
}

func IncDecodeError() {
	if decodeErrors != nil {
		decodeErrors.Inc()
	}
}

// IncPersistError increments failed store writes for a record kind.
func IncPersistError(record string) {
	if record == "" {
		record = "unknown"
	}
	if persistErrors != nil {
		persistErrors.WithLabelValues(record).Inc()
	}
}

// IncPublishError increments failed publishes; destination is "warnings", "alarms" or "control".
func IncPublishError(destination string) {
	if destination == "" {
		destination = "unknown"
	}
	if publishErrors != nil {
		publishErrors.WithLabelValues(destination).Inc()
	}
}

func IncAlert(alertType, severity string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(alertType, severity).Inc()
	}
}

func IncControlCommand(command string) {
	if controlCommands != nil {
		controlCommands.WithLabelValues(command).Inc()
	}
}

// IncInboundDrop counts a message discarded after the enqueue timeout.
func IncInboundDrop(transport string) {
	if inboundDrops != nil {
		inboundDrops.WithLabelValues(transport).Inc()
	}
}

func IncNotifyFailure(channel string) {
	if notifyFailures != nil {
		notifyFailures.WithLabelValues(channel).Inc()
	}
}

// ObserveMirrorBatch records the outcome of one mirror flush.
func ObserveMirrorBatch(err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if mirrorBatches != nil {
		mirrorBatches.WithLabelValues(result).Inc()
	}
}

func SetDevicesTimedOut(n int) {
	if n < 0 {
		n = 0
	}
	if devicesTimedOut != nil {
		devicesTimedOut.Set(float64(n))
	}
}
