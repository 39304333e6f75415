// Package mqtt wraps paho.mqtt.golang for Verdant Core's outward
// messaging: device state mirrors, decoded readings, rate-limited
// alerts, and system status.
//
// The client provides connection management with automatic reconnect
// and exponential backoff, Last Will and Testament for offline
// detection, and subscription restoration after reconnection. Topic
// builders in topics.go keep the verdant/... hierarchy consistent
// across the codebase.
//
// All methods are safe for concurrent use.
package mqtt
