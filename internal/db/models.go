package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateFlat is returned when a flat registration already exists.
var ErrDuplicateFlat = errors.New("flat already registered")

// RegisteredFlat marks a flat as known to the worker. Only pull-enabled
// flats are visited by the measurement poller.
type RegisteredFlat struct {
	FlatID      string    `json:"flatId"`
	PullEnabled bool      `json:"pullEnabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Device is one telemetry device, one per (flatId, roomNr) pair.
type Device struct {
	DeviceID  uuid.UUID `json:"deviceId"`
	FlatID    string    `json:"flatId"`
	RoomNr    int       `json:"roomNr"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sample is a single measurement taken from a room snapshot. Timestamp is
// epoch milliseconds to keep the stored JSON stable for set-semantics
// comparison.
type Sample struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	MeterValue  float64 `json:"meterValue"`
}

// SampleAppend pairs a sample with the device whose measurement log it
// belongs to.
type SampleAppend struct {
	DeviceID uuid.UUID
	Sample   Sample
}

// MeasurementStatus is the singleton freshness record maintained by the
// poller: when the last cycle finished and how long after the one before.
type MeasurementStatus struct {
	LastUpdate       time.Time `json:"lastUpdate"`
	TimeDiffInMillis int64     `json:"timeDiffInMillis"`
}

// RoomMeterValueRange is the per-room min/max meter-value aggregate over a
// time window.
type RoomMeterValueRange struct {
	RoomNr        int     `json:"roomNr"`
	MinMeterValue float64 `json:"minMeterValue"`
	MaxMeterValue float64 `json:"maxMeterValue"`
}
