// Package automation evaluates user-defined automation rules against
// typed device events.
//
// The Evaluator is stateless: each event is matched against the caller's
// current rule set and produces zero or more action requests. Debouncing
// and delivery throttling live elsewhere (the notification rate
// limiter); rule storage lives in the per-user configuration aggregate.
package automation
