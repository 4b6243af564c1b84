package domain

import "errors"

var (
	// ErrUnknownNode is returned when a node id is not in the registry.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvalidTarget means the action does not apply to the node's type or state.
	// It is reported to the caller and never retried.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrTypeConflict means a node was revealed as a different type than before.
	ErrTypeConflict = errors.New("node type already revealed")

	// ErrUnknownIntent is returned when withdrawing an intent that is not queued.
	ErrUnknownIntent = errors.New("unknown intent")

	// ErrRunOver is returned once the run has terminated.
	ErrRunOver = errors.New("run is over")

	// ErrAlarmTriggered is the terminal failure raised by the alarm countdown.
	ErrAlarmTriggered = errors.New("alarm triggered")

	// ErrInvalidDefinition wraps every node or level authoring error.
	ErrInvalidDefinition = errors.New("invalid definition")
)
