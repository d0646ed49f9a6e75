// Package events defines the command envelope consumed from the bus, the
// closed set of lifecycle commands it can carry, and the outcome events
// published back.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Recognized envelope actions. Anything else is a routing error.
const (
	ActionCreateDevice    = "CreateDevice"
	ActionDeleteDevice    = "DeleteDevice"
	ActionPullStateChange = "PullStateChangeDevice"
	ActionDeviceCreated   = "DeviceCreated"
)

// Device-provisioning outcome statuses.
const (
	StatusCreated = "CREATED"
	StatusFailed  = "FAILED"
)

// Envelope is the wire shape of every inbound command message.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Command is the closed union of validated lifecycle commands.
type Command interface {
	isCommand()
}

// CreateFlatCommand provisions all devices of a flat.
type CreateFlatCommand struct {
	FlatID string
}

// DeleteFlatCommand tears a flat and its devices down.
type DeleteFlatCommand struct {
	FlatID string
}

// PullStateCommand enables or disables polling for a flat.
type PullStateCommand struct {
	FlatID string
	Pull   bool
}

func (CreateFlatCommand) isCommand() {}
func (DeleteFlatCommand) isCommand() {}
func (PullStateCommand) isCommand()  {}

// DeviceCreatedEvent is the outcome event published after a provisioning
// attempt.
type DeviceCreatedEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Action    string            `json:"action"`
	Timestamp int64             `json:"timestamp"`
	Data      DeviceCreatedData `json:"data"`
}

// DeviceCreatedData carries the provisioning result.
type DeviceCreatedData struct {
	FlatID        string `json:"flatId"`
	DevicesStatus string `json:"devicesStatus"`
	Rooms         []int  `json:"rooms"`
}

// NewDeviceCreated builds a DeviceCreated outcome event with a fresh id and
// the current timestamp.
func NewDeviceCreated(flatID, status string, rooms []int) DeviceCreatedEvent {
	if rooms == nil {
		rooms = []int{}
	}
	return DeviceCreatedEvent{
		ID:        uuid.New().String(),
		Type:      "event",
		Action:    ActionDeviceCreated,
		Timestamp: time.Now().UnixMilli(),
		Data: DeviceCreatedData{
			FlatID:        flatID,
			DevicesStatus: status,
			Rooms:         rooms,
		},
	}
}
