package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading appends one decoded device reading to the audit trail.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Points are tagged by device, device class and metric so history stays
// queryable after the device record itself is deleted.
//
// Parameters:
//   - deviceID: Unique identifier for the device
//   - class: Device class (e.g., "bin", "energy-monitor", "appliance")
//   - metric: The decoded metric name (e.g., "weight", "power")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteReading("bin-kitchen", "bin", "weight", 1500)
func (c *Client) WriteReading(deviceID, class, metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"readings",
		map[string]string{
			"device_id": deviceID,
			"class":     class,
			"metric":    metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlert records one raised alert for after-the-fact analysis.
//
// Parameters:
//   - deviceID: Device identifier
//   - alertType: Alert category (e.g., "bin_full", "high_power_usage")
//   - priority: Alert priority ("critical", "high", "medium", "low")
//   - value: The value that triggered the alert
func (c *Client) WriteAlert(deviceID, alertType, priority string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alerts",
		map[string]string{
			"device_id": deviceID,
			"type":      alertType,
			"priority":  priority,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
