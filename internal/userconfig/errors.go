package userconfig

import "errors"

// Domain errors for the userconfig package.
var (
	// ErrKeyNotFound is returned by Store.Get for an absent key.
	ErrKeyNotFound = errors.New("userconfig: key not found")

	// ErrConfigNotFound is returned when a user has no configuration
	// aggregate yet. Callers normally recover with InitializeEmptyConfig.
	ErrConfigNotFound = errors.New("userconfig: config not found")

	// ErrRuleNotFound is returned when an automation rule ID does not
	// exist in the user's configuration.
	ErrRuleNotFound = errors.New("userconfig: automation rule not found")

	// ErrInvalidConfig is returned when a configuration aggregate fails
	// validation before persistence.
	ErrInvalidConfig = errors.New("userconfig: invalid config")
)
