package mqtt

import (
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device state", topics.DeviceState("bin-kitchen"), "verdant/core/device/bin-kitchen/state"},
		{"device reading", topics.DeviceReading("bin-kitchen", "weight"), "verdant/core/device/bin-kitchen/reading/weight"},
		{"alert", topics.Alert("critical"), "verdant/core/alert/critical"},
		{"automation fired", topics.AutomationFired("rule-bin-full"), "verdant/core/automation/rule-bin-full/fired"},
		{"event", topics.Event("device_connected"), "verdant/core/event/device_connected"},
		{"system status", topics.SystemStatus(), "verdant/system/status"},
		{"all readings", topics.AllDeviceReadings(), "verdant/core/device/+/reading/+"},
		{"all states", topics.AllDeviceStates(), "verdant/core/device/+/state"},
		{"all alerts", topics.AllAlerts(), "verdant/core/alert/+"},
		{"all events", topics.AllEvents(), "verdant/core/event/+"},
		{"all topics", topics.AllTopics(), "verdant/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if err := client.Publish("", []byte("x"), 1, false); err != ErrInvalidTopic {
		t.Errorf("Publish(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Publish("verdant/core/alert/high", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Publish("verdant/core/alert/high", []byte("x"), 1, false); err != ErrNotConnected {
		t.Errorf("Publish(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); err != ErrInvalidTopic {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("verdant/#", 3, handler); err != ErrInvalidQoS {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("verdant/#", 1, nil); err == nil {
		t.Error("Subscribe(nil handler) accepted")
	}
	if err := client.Subscribe("verdant/#", 1, handler); err != ErrNotConnected {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if client.HasSubscription("verdant/core/alert/+") {
		t.Error("HasSubscription() = true for untracked topic")
	}
}
