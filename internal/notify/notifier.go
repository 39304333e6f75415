package notify

import (
	"encoding/json"
	"fmt"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/infrastructure/mqtt"
)

// Publisher is the outbound message sink. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging interface used by the notifier.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Notifier pushes rate-limited alerts to the notification topic.
type Notifier struct {
	limiter   *RateLimiter
	publisher Publisher
	qos       byte
	logger    Logger
}

// NewNotifier creates a notifier delivering through the given
// publisher at the given QoS.
func NewNotifier(limiter *RateLimiter, publisher Publisher, qos byte) *Notifier {
	return &Notifier{
		limiter:   limiter,
		publisher: publisher,
		qos:       qos,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the notifier.
func (n *Notifier) SetLogger(logger Logger) {
	n.logger = logger
}

// Deliver forwards one alert if its bucket has quota left.
//
// Returns:
//   - bool: true if the alert was published, false if dropped
//   - error: publish failure; the token is still consumed
func (n *Notifier) Deliver(alert adapters.Alert) (bool, error) {
	if !n.limiter.ShouldAllow(alert) {
		n.logger.Debug("alert dropped by rate limiter",
			"device_id", alert.DeviceID,
			"type", alert.Type,
			"priority", string(alert.Priority),
		)
		return false, nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return false, fmt.Errorf("marshalling alert %s: %w", alert.ID, err)
	}

	topic := mqtt.Topics{}.Alert(string(alert.Priority))
	if err := n.publisher.Publish(topic, payload, n.qos, false); err != nil {
		return false, fmt.Errorf("publishing alert %s: %w", alert.ID, err)
	}
	return true, nil
}

// QuotaRemaining reports the tokens left for the alert's bucket.
func (n *Notifier) QuotaRemaining(alert adapters.Alert) float64 {
	return n.limiter.QuotaRemaining(alert)
}
