package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/septivank/flat-telemetry-worker/internal/db"
	"github.com/septivank/flat-telemetry-worker/internal/events"
	"github.com/septivank/flat-telemetry-worker/internal/logging"
	"go.uber.org/zap"
)

// Dispatcher validates inbound lifecycle commands and runs the matching
// workflow. Each message is handled to completion; the bus adapter owns
// ack/retry policy based on the returned error.
type Dispatcher struct {
	store     Store
	fetcher   SnapshotFetcher
	publisher OutcomePublisher
	logger    *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(store Store, fetcher SnapshotFetcher, publisher OutcomePublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleMessage processes one raw command message from the bus.
func (d *Dispatcher) HandleMessage(ctx context.Context, body []byte) error {
	cmd, err := events.Decode(body)
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case events.CreateFlatCommand:
		return d.provisionFlat(ctx, c.FlatID)
	case events.DeleteFlatCommand:
		return d.decommissionFlat(ctx, c.FlatID)
	case events.PullStateCommand:
		return d.setPullState(ctx, c.FlatID, c.Pull)
	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}
}

// provisionFlat registers a flat and creates one device plus one empty
// measurement log per room found in the current telemetry snapshot.
//
// The steps after the snapshot fetch are a saga with no rollback: a failure
// mid-way leaves whatever was committed and downgrades to a FAILED outcome
// event. Redelivery of the same command hits the flat uniqueness constraint
// and is treated as success.
func (d *Dispatcher) provisionFlat(ctx context.Context, flatID string) error {
	flatLogger := logging.WithFlatID(d.logger, flatID)
	flatLogger.Info("provisioning flat devices")

	rooms, err := d.fetcher.FetchRoomMeasurements(ctx, flatID)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot for provisioning: %w", err)
	}

	roomNrs := make([]int, 0, len(rooms))
	for _, room := range rooms {
		roomNrs = append(roomNrs, room.RoomNr)
	}

	if err := d.store.CreateFlat(ctx, flatID); err != nil {
		if errors.Is(err, db.ErrDuplicateFlat) {
			flatLogger.Warn("flat already provisioned, treating redelivery as success")
			d.publishOutcome(ctx, flatLogger, events.NewDeviceCreated(flatID, events.StatusCreated, roomNrs))
			return nil
		}
		return d.provisionFailed(ctx, flatLogger, flatID, "failed to register flat", err)
	}

	deviceDocs := make([]db.Device, 0, len(rooms))
	deviceIDs := make([]uuid.UUID, 0, len(rooms))
	for _, room := range rooms {
		deviceID := uuid.New()
		deviceDocs = append(deviceDocs, db.Device{
			DeviceID: deviceID,
			FlatID:   flatID,
			RoomNr:   room.RoomNr,
			Name:     fmt.Sprintf("device-%s-room-%d", flatID, room.RoomNr),
		})
		deviceIDs = append(deviceIDs, deviceID)
	}

	if err := d.store.CreateDevices(ctx, deviceDocs); err != nil {
		return d.provisionFailed(ctx, flatLogger, flatID, "failed to insert devices", err)
	}

	if err := d.store.CreateEmptyMeasurements(ctx, deviceIDs); err != nil {
		return d.provisionFailed(ctx, flatLogger, flatID, "failed to insert measurement logs", err)
	}

	d.publishOutcome(ctx, flatLogger, events.NewDeviceCreated(flatID, events.StatusCreated, roomNrs))

	flatLogger.Info("flat provisioned", zap.Int("device_count", len(deviceDocs)))
	return nil
}

func (d *Dispatcher) provisionFailed(ctx context.Context, logger *zap.Logger, flatID, step string, err error) error {
	logger.Error(step, zap.Error(err))
	d.publishOutcome(ctx, logger, events.NewDeviceCreated(flatID, events.StatusFailed, nil))
	return fmt.Errorf("%s: %w", step, err)
}

func (d *Dispatcher) publishOutcome(ctx context.Context, logger *zap.Logger, event events.DeviceCreatedEvent) {
	if err := d.publisher.PublishOutcome(ctx, event); err != nil {
		logger.Error("failed to publish outcome event",
			zap.Error(err),
			zap.String("devices_status", event.Data.DevicesStatus),
		)
	}
}

// decommissionFlat removes the flat registration, then its devices and
// their measurement logs.
//
// The registration is deleted before the device existence check, so a flat
// that was registered but never got devices ends half-deleted with a
// not-found error. That matches the historical behavior of this workflow
// and keeps redelivery observable.
func (d *Dispatcher) decommissionFlat(ctx context.Context, flatID string) error {
	flatLogger := logging.WithFlatID(d.logger, flatID)
	flatLogger.Info("decommissioning flat devices")

	if err := d.store.DeleteFlat(ctx, flatID); err != nil {
		return fmt.Errorf("failed to delete flat registration: %w", err)
	}

	devices, err := d.store.DevicesByFlat(ctx, flatID)
	if err != nil {
		return fmt.Errorf("failed to load flat devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no devices for flat %s: %w", flatID, db.ErrNotFound)
	}

	deviceIDs := make([]uuid.UUID, 0, len(devices))
	for _, device := range devices {
		deviceIDs = append(deviceIDs, device.DeviceID)
	}

	if err := d.store.DeleteMeasurements(ctx, deviceIDs); err != nil {
		return fmt.Errorf("failed to delete measurement logs: %w", err)
	}

	if err := d.store.DeleteDevicesByFlat(ctx, flatID); err != nil {
		return fmt.Errorf("failed to delete devices: %w", err)
	}

	flatLogger.Info("flat decommissioned", zap.Int("device_count", len(devices)))
	return nil
}

// setPullState flips the poll flag. Update-if-present: success even when no
// flat matched.
func (d *Dispatcher) setPullState(ctx context.Context, flatID string, pull bool) error {
	if err := d.store.SetFlatPull(ctx, flatID, pull); err != nil {
		return fmt.Errorf("failed to update pull state: %w", err)
	}

	logging.WithFlatID(d.logger, flatID).Info("pull state updated", zap.Bool("pull", pull))
	return nil
}
