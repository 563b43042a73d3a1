package services

import (
	"strings"
	"time"

	"smartoffice/models"
)

// enqueueInbound hands msg to the consumer loop. It gives up after timeout so a stalled
// coordinator never blocks the transport's own delivery goroutine.
func enqueueInbound(out chan<- models.InboundMessage, msg models.InboundMessage, timeout time.Duration) bool {
	select {
	case out <- msg:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out <- msg:
		return true
	case <-timer.C:
		return false
	}
}

// topicToRoutingKey maps an MQTT topic or filter to an AMQP topic-exchange routing key
// the way the RabbitMQ MQTT plugin does: separators are swapped and "+" becomes "*".
func topicToRoutingKey(topic string) string {
	key := swapSeparators(strings.Trim(topic, "/"))
	parts := strings.Split(key, ".")
	for i, p := range parts {
		if p == "+" {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

// routingKeyToTopic is the inverse of topicToRoutingKey for concrete keys.
func routingKeyToTopic(key string) string {
	return swapSeparators(key)
}

func swapSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/':
			return '.'
		case '.':
			return '/'
		}
		return r
	}, s)
}
