package events

import "encoding/json"

type createPayload struct {
	FlatID string `json:"flatId"`
}

type deletePayload struct {
	FlatID string `json:"flatId"`
}

type pullStatePayload struct {
	FlatID string `json:"flatId"`
	Pull   *bool  `json:"pull"`
}

// Decode parses and validates an inbound message body, returning exactly
// one command of the closed union. Malformed envelopes and payloads fail
// with *ValidationError, unknown actions with *RoutingError; neither must
// reach a workflow.
func Decode(body []byte) (Command, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ValidationError{Reason: "body is not valid JSON"}
	}

	if envelope.Type == "" {
		return nil, &ValidationError{Reason: "missing type"}
	}

	switch envelope.Action {
	case ActionCreateDevice:
		return decodeCreate(envelope.Data)
	case ActionDeleteDevice:
		return decodeDelete(envelope.Data)
	case ActionPullStateChange:
		return decodePullState(envelope.Data)
	default:
		return nil, &RoutingError{Action: envelope.Action}
	}
}

func decodeCreate(data json.RawMessage) (Command, error) {
	var payload createPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ValidationError{Reason: "malformed CreateDevice payload"}
	}
	if payload.FlatID == "" {
		return nil, &ValidationError{Reason: "CreateDevice requires a non-empty flatId"}
	}
	return CreateFlatCommand{FlatID: payload.FlatID}, nil
}

func decodeDelete(data json.RawMessage) (Command, error) {
	var payload deletePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ValidationError{Reason: "malformed DeleteDevice payload"}
	}
	if payload.FlatID == "" {
		return nil, &ValidationError{Reason: "DeleteDevice requires a non-empty flatId"}
	}
	return DeleteFlatCommand{FlatID: payload.FlatID}, nil
}

func decodePullState(data json.RawMessage) (Command, error) {
	var payload pullStatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ValidationError{Reason: "malformed PullStateChangeDevice payload"}
	}
	if payload.FlatID == "" {
		return nil, &ValidationError{Reason: "PullStateChangeDevice requires a non-empty flatId"}
	}
	if payload.Pull == nil {
		return nil, &ValidationError{Reason: "PullStateChangeDevice requires a boolean pull"}
	}
	return PullStateCommand{FlatID: payload.FlatID, Pull: *payload.Pull}, nil
}
