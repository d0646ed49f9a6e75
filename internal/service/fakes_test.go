package service_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/septivank/flat-telemetry-worker/internal/db"
	"github.com/septivank/flat-telemetry-worker/internal/events"
	"github.com/septivank/flat-telemetry-worker/internal/telemetry"
)

var errInjected = errors.New("injected store failure")

// fakeStore is an in-memory implementation of the service.Store contract,
// including the set-semantics sample append.
type fakeStore struct {
	flats        map[string]*db.RegisteredFlat
	devices      map[uuid.UUID]db.Device
	measurements map[uuid.UUID][]db.Sample
	status       *db.MeasurementStatus

	failCreateDevices     bool
	failEmptyMeasurements bool
	failCreateFlat        bool
	mutations             int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		flats:        make(map[string]*db.RegisteredFlat),
		devices:      make(map[uuid.UUID]db.Device),
		measurements: make(map[uuid.UUID][]db.Sample),
	}
}

func (s *fakeStore) PullEnabledFlats(ctx context.Context) ([]db.RegisteredFlat, error) {
	var flats []db.RegisteredFlat
	for _, flat := range s.flats {
		if flat.PullEnabled {
			flats = append(flats, *flat)
		}
	}
	return flats, nil
}

func (s *fakeStore) CreateFlat(ctx context.Context, flatID string) error {
	if s.failCreateFlat {
		return errInjected
	}
	if _, exists := s.flats[flatID]; exists {
		return fmt.Errorf("flat %s: %w", flatID, db.ErrDuplicateFlat)
	}
	s.mutations++
	s.flats[flatID] = &db.RegisteredFlat{FlatID: flatID}
	return nil
}

func (s *fakeStore) DeleteFlat(ctx context.Context, flatID string) error {
	if _, exists := s.flats[flatID]; !exists {
		return fmt.Errorf("flat %s: %w", flatID, db.ErrNotFound)
	}
	s.mutations++
	delete(s.flats, flatID)
	return nil
}

func (s *fakeStore) SetFlatPull(ctx context.Context, flatID string, pull bool) error {
	s.mutations++
	if flat, exists := s.flats[flatID]; exists {
		flat.PullEnabled = pull
	}
	return nil
}

func (s *fakeStore) DevicesByFlat(ctx context.Context, flatID string) ([]db.Device, error) {
	var devices []db.Device
	for _, device := range s.devices {
		if device.FlatID == flatID {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

func (s *fakeStore) CreateDevices(ctx context.Context, devices []db.Device) error {
	if s.failCreateDevices {
		return errInjected
	}
	s.mutations++
	for _, device := range devices {
		s.devices[device.DeviceID] = device
	}
	return nil
}

func (s *fakeStore) DeleteDevicesByFlat(ctx context.Context, flatID string) error {
	s.mutations++
	for id, device := range s.devices {
		if device.FlatID == flatID {
			delete(s.devices, id)
		}
	}
	return nil
}

func (s *fakeStore) CreateEmptyMeasurements(ctx context.Context, deviceIDs []uuid.UUID) error {
	if s.failEmptyMeasurements {
		return errInjected
	}
	s.mutations++
	for _, id := range deviceIDs {
		s.measurements[id] = []db.Sample{}
	}
	return nil
}

func (s *fakeStore) AppendSamples(ctx context.Context, appends []db.SampleAppend) error {
	s.mutations++
	for _, a := range appends {
		log, exists := s.measurements[a.DeviceID]
		if !exists {
			continue
		}
		duplicate := false
		for _, sample := range log {
			if sample == a.Sample {
				duplicate = true
				break
			}
		}
		if !duplicate {
			s.measurements[a.DeviceID] = append(log, a.Sample)
		}
	}
	return nil
}

func (s *fakeStore) DeleteMeasurements(ctx context.Context, deviceIDs []uuid.UUID) error {
	s.mutations++
	for _, id := range deviceIDs {
		delete(s.measurements, id)
	}
	return nil
}

func (s *fakeStore) MeasurementStatus(ctx context.Context) (*db.MeasurementStatus, error) {
	if s.status == nil {
		return nil, fmt.Errorf("measurement status: %w", db.ErrNotFound)
	}
	copied := *s.status
	return &copied, nil
}

func (s *fakeStore) SaveMeasurementStatus(ctx context.Context, status db.MeasurementStatus) error {
	s.mutations++
	s.status = &status
	return nil
}

// fakeFetcher serves canned snapshots per flat, or an error.
type fakeFetcher struct {
	snapshots map[string][]telemetry.RoomMeasurement
	failures  map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		snapshots: make(map[string][]telemetry.RoomMeasurement),
		failures:  make(map[string]error),
	}
}

func (f *fakeFetcher) FetchRoomMeasurements(ctx context.Context, flatID string) ([]telemetry.RoomMeasurement, error) {
	if err, failed := f.failures[flatID]; failed {
		return nil, err
	}
	snapshot, exists := f.snapshots[flatID]
	if !exists {
		return nil, fmt.Errorf("no snapshot for flat %s", flatID)
	}
	return snapshot, nil
}

// fakePublisher records published outcome events.
type fakePublisher struct {
	published []events.DeviceCreatedEvent
	fail      bool
}

func (p *fakePublisher) PublishOutcome(ctx context.Context, event events.DeviceCreatedEvent) error {
	if p.fail {
		return errors.New("injected publish failure")
	}
	p.published = append(p.published, event)
	return nil
}
