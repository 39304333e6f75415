// Package notify rate-limits alert delivery and forwards the allowed
// alerts to MQTT.
//
// Alerts are throttled per key with token buckets: the key is the
// alert's group when set (e.g. one bucket per bin), otherwise its
// type and metric. Each priority carries its own bucket parameters so
// critical alerts always get through quickly while low-priority
// chatter is dampened. Buckets start full, quota is purely in-memory,
// and a restart resets it.
//
// Alerts over quota are dropped, not queued.
package notify
