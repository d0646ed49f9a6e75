package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/septivank/flat-telemetry-worker/internal/db"
	"github.com/septivank/flat-telemetry-worker/internal/events"
	"github.com/septivank/flat-telemetry-worker/internal/telemetry"
)

// Store is the document-store surface the engine mutates. Implemented by
// repository.Repository.
type Store interface {
	PullEnabledFlats(ctx context.Context) ([]db.RegisteredFlat, error)
	CreateFlat(ctx context.Context, flatID string) error
	DeleteFlat(ctx context.Context, flatID string) error
	SetFlatPull(ctx context.Context, flatID string, pull bool) error

	DevicesByFlat(ctx context.Context, flatID string) ([]db.Device, error)
	CreateDevices(ctx context.Context, devices []db.Device) error
	DeleteDevicesByFlat(ctx context.Context, flatID string) error

	CreateEmptyMeasurements(ctx context.Context, deviceIDs []uuid.UUID) error
	AppendSamples(ctx context.Context, appends []db.SampleAppend) error
	DeleteMeasurements(ctx context.Context, deviceIDs []uuid.UUID) error

	MeasurementStatus(ctx context.Context) (*db.MeasurementStatus, error)
	SaveMeasurementStatus(ctx context.Context, status db.MeasurementStatus) error
}

// SnapshotFetcher pulls a flat's current room measurements from the
// telemetry provider. Implemented by telemetry.Client.
type SnapshotFetcher interface {
	FetchRoomMeasurements(ctx context.Context, flatID string) ([]telemetry.RoomMeasurement, error)
}

// OutcomePublisher publishes workflow outcome events to the bus.
// Implemented by mq.Publisher.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event events.DeviceCreatedEvent) error
}
