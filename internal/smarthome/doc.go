// Package smarthome is the orchestration layer tying the transport,
// repositories, device-class adapters, automation evaluator, and
// notification pipeline together behind one public API.
//
// Initialization runs a fixed sequence (transport, device repository,
// per-user configuration with lazy empty default, adapters) and every
// other public operation is rejected with ErrNotInitialized until the
// sequence completes for the current user. Re-initialising for the
// same user is a no-op; a different user re-runs the full sequence.
//
// The orchestrator forwards transport and adapter events to its own
// subscribers unmodified apart from envelope enrichment, evaluates
// automation rules against decoded readings, and pushes threshold and
// fault alerts through the rate-limited notifier.
package smarthome
