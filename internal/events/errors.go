package events

import "fmt"

// ValidationError rejects a message whose envelope or payload is malformed.
// It is terminal: the message must not be retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event message: %s", e.Reason)
}

// RoutingError rejects a message whose action is not one of the recognized
// lifecycle actions. Also terminal.
type RoutingError struct {
	Action string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("unsupported event action: %s", e.Action)
}
