package service_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/septivank/flat-telemetry-worker/internal/db"
	"github.com/septivank/flat-telemetry-worker/internal/events"
	"github.com/septivank/flat-telemetry-worker/internal/service"
	"github.com/septivank/flat-telemetry-worker/internal/telemetry"
	"go.uber.org/zap"
)

func snapshotForRooms(roomNrs ...int) []telemetry.RoomMeasurement {
	ts := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	rooms := make([]telemetry.RoomMeasurement, 0, len(roomNrs))
	for _, nr := range roomNrs {
		rooms = append(rooms, telemetry.RoomMeasurement{
			RoomNr:      nr,
			Temperature: telemetry.MeasurementValue{Timestamp: ts, Value: 21.5},
			MeterValue:  telemetry.MeasurementValue{Timestamp: ts, Value: 1830.25},
		})
	}
	return rooms
}

func commandBody(action, data string) []byte {
	return []byte(`{"id":"m1","type":"command","action":"` + action + `","timestamp":1767004200000,"data":` + data + `}`)
}

func TestProvision_CreatesDeviceAndLogPerRoom(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1, 2, 3)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`))
	if err != nil {
		t.Fatalf("Failed to provision flat: %v", err)
	}

	if _, exists := store.flats["flat-42"]; !exists {
		t.Error("Expected flat registration")
	}

	if len(store.devices) != 3 {
		t.Fatalf("Expected 3 devices, got %d", len(store.devices))
	}

	if len(store.measurements) != 3 {
		t.Fatalf("Expected 3 measurement logs, got %d", len(store.measurements))
	}

	gotRooms := make(map[int]bool)
	for _, device := range store.devices {
		gotRooms[device.RoomNr] = true

		expectedName := "device-flat-42-room-"
		if device.Name[:len(expectedName)] != expectedName {
			t.Errorf("Unexpected device name: %s", device.Name)
		}

		log, exists := store.measurements[device.DeviceID]
		if !exists {
			t.Errorf("Device %s has no measurement log", device.DeviceID)
		}
		if len(log) != 0 {
			t.Errorf("Expected empty measurement log, got %d samples", len(log))
		}
	}
	for _, nr := range []int{1, 2, 3} {
		if !gotRooms[nr] {
			t.Errorf("No device created for room %d", nr)
		}
	}

	if len(publisher.published) != 1 {
		t.Fatalf("Expected 1 outcome event, got %d", len(publisher.published))
	}

	outcome := publisher.published[0]
	if outcome.Data.DevicesStatus != events.StatusCreated {
		t.Errorf("Expected CREATED outcome, got %s", outcome.Data.DevicesStatus)
	}

	rooms := append([]int(nil), outcome.Data.Rooms...)
	sort.Ints(rooms)
	if len(rooms) != 3 || rooms[0] != 1 || rooms[1] != 2 || rooms[2] != 3 {
		t.Errorf("Expected rooms {1,2,3}, got %v", outcome.Data.Rooms)
	}
}

func TestProvision_StoreFailurePublishesFailedOutcome(t *testing.T) {
	store := newFakeStore()
	store.failCreateDevices = true
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1, 2)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`))
	if err == nil {
		t.Fatal("Expected workflow failure")
	}

	if len(publisher.published) != 1 {
		t.Fatalf("Expected 1 outcome event, got %d", len(publisher.published))
	}

	outcome := publisher.published[0]
	if outcome.Data.DevicesStatus != events.StatusFailed {
		t.Errorf("Expected FAILED outcome, got %s", outcome.Data.DevicesStatus)
	}
	if len(outcome.Data.Rooms) != 0 {
		t.Errorf("Expected empty rooms on failure, got %v", outcome.Data.Rooms)
	}

	// the committed flat registration is not rolled back
	if _, exists := store.flats["flat-42"]; !exists {
		t.Error("Expected orphaned flat registration to remain")
	}
}

func TestProvision_FlatInsertFailurePublishesFailed(t *testing.T) {
	store := newFakeStore()
	store.failCreateFlat = true
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`))
	if err == nil {
		t.Fatal("Expected workflow failure")
	}

	if len(publisher.published) != 1 || publisher.published[0].Data.DevicesStatus != events.StatusFailed {
		t.Errorf("Expected a single FAILED outcome, got %+v", publisher.published)
	}
	if len(store.devices) != 0 {
		t.Errorf("Expected no devices after flat insert failure, got %d", len(store.devices))
	}
}

func TestProvision_MeasurementLogFailureLeavesDevices(t *testing.T) {
	store := newFakeStore()
	store.failEmptyMeasurements = true
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1, 2)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`))
	if err == nil {
		t.Fatal("Expected workflow failure")
	}

	// committed steps are not rolled back
	if _, exists := store.flats["flat-42"]; !exists {
		t.Error("Expected flat registration to remain")
	}
	if len(store.devices) != 2 {
		t.Errorf("Expected devices to remain, got %d", len(store.devices))
	}

	if len(publisher.published) != 1 || publisher.published[0].Data.DevicesStatus != events.StatusFailed {
		t.Errorf("Expected a single FAILED outcome, got %+v", publisher.published)
	}
}

func TestProvision_PublishFailureDoesNotFailWorkflow(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{fail: true}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`))
	if err != nil {
		t.Fatalf("Outcome publish failure must not fail provisioning, got %v", err)
	}

	if len(store.devices) != 1 {
		t.Errorf("Expected device to be created, got %d", len(store.devices))
	}
}

func TestProvision_FetchFailurePublishesNoOutcome(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.failures["flat-42"] = errors.New("provider unreachable")

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`))
	if err == nil {
		t.Fatal("Expected failure when snapshot fetch fails")
	}

	if len(publisher.published) != 0 {
		t.Errorf("Expected no outcome event before any store step, got %d", len(publisher.published))
	}

	if store.mutations != 0 {
		t.Errorf("Expected no store mutations, got %d", store.mutations)
	}
}

func TestProvision_RedeliveryTreatedAsSuccess(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1, 2)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	body := commandBody("CreateDevice", `{"flatId":"flat-42"}`)
	if err := dispatcher.HandleMessage(context.Background(), body); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	if err := dispatcher.HandleMessage(context.Background(), body); err != nil {
		t.Fatalf("Redelivery must succeed, got: %v", err)
	}

	if len(store.devices) != 2 {
		t.Errorf("Expected redelivery to create no extra devices, got %d", len(store.devices))
	}

	if len(publisher.published) != 2 {
		t.Fatalf("Expected an outcome per delivery, got %d", len(publisher.published))
	}
	if publisher.published[1].Data.DevicesStatus != events.StatusCreated {
		t.Errorf("Expected CREATED outcome on redelivery, got %s", publisher.published[1].Data.DevicesStatus)
	}
}

func TestDecommission_RemovesEverything(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	publisher := &fakePublisher{}
	fetcher.snapshots["flat-42"] = snapshotForRooms(1, 2)

	dispatcher := service.NewDispatcher(store, fetcher, publisher, zap.NewNop())

	if err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":"flat-42"}`)); err != nil {
		t.Fatalf("Failed to provision: %v", err)
	}

	err := dispatcher.HandleMessage(context.Background(), commandBody("DeleteDevice", `{"flatId":"flat-42"}`))
	if err != nil {
		t.Fatalf("Failed to decommission: %v", err)
	}

	if len(store.flats) != 0 || len(store.devices) != 0 || len(store.measurements) != 0 {
		t.Errorf("Expected empty store, got flats=%d devices=%d measurements=%d",
			len(store.flats), len(store.devices), len(store.measurements))
	}

	// repeating decommission now fails as not-found
	err = dispatcher.HandleMessage(context.Background(), commandBody("DeleteDevice", `{"flatId":"flat-42"}`))
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not-found on repeated decommission, got %v", err)
	}
}

func TestDecommission_FlatWithoutDevicesEndsHalfDeleted(t *testing.T) {
	store := newFakeStore()
	store.flats["flat-42"] = &db.RegisteredFlat{FlatID: "flat-42"}

	dispatcher := service.NewDispatcher(store, newFakeFetcher(), &fakePublisher{}, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("DeleteDevice", `{"flatId":"flat-42"}`))
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("Expected not-found, got %v", err)
	}

	// the flat registration is already gone despite the error
	if _, exists := store.flats["flat-42"]; exists {
		t.Error("Expected flat registration to be deleted before the device check")
	}
}

func TestToggle_AbsentFlatIsNoOp(t *testing.T) {
	store := newFakeStore()

	dispatcher := service.NewDispatcher(store, newFakeFetcher(), &fakePublisher{}, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("PullStateChangeDevice", `{"flatId":"ghost","pull":true}`))
	if err != nil {
		t.Fatalf("Expected success for absent flat, got %v", err)
	}

	if len(store.flats) != 0 {
		t.Error("Expected no flat row to be created")
	}
}

func TestToggle_EnablesAndDisablesPull(t *testing.T) {
	store := newFakeStore()
	store.flats["flat-42"] = &db.RegisteredFlat{FlatID: "flat-42"}

	dispatcher := service.NewDispatcher(store, newFakeFetcher(), &fakePublisher{}, zap.NewNop())

	if err := dispatcher.HandleMessage(context.Background(), commandBody("PullStateChangeDevice", `{"flatId":"flat-42","pull":true}`)); err != nil {
		t.Fatalf("Failed to enable pull: %v", err)
	}
	if !store.flats["flat-42"].PullEnabled {
		t.Error("Expected pull to be enabled")
	}

	if err := dispatcher.HandleMessage(context.Background(), commandBody("PullStateChangeDevice", `{"flatId":"flat-42","pull":false}`)); err != nil {
		t.Fatalf("Failed to disable pull: %v", err)
	}
	if store.flats["flat-42"].PullEnabled {
		t.Error("Expected pull to be disabled")
	}
}

func TestDispatcher_UnknownActionTouchesNoState(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}

	dispatcher := service.NewDispatcher(store, newFakeFetcher(), publisher, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("ResetDevice", `{"flatId":"flat-42"}`))

	var routingErr *events.RoutingError
	if !errors.As(err, &routingErr) {
		t.Fatalf("Expected RoutingError, got %v", err)
	}

	if store.mutations != 0 {
		t.Errorf("Expected no store mutations, got %d", store.mutations)
	}
	if len(publisher.published) != 0 {
		t.Error("Expected no outcome events")
	}
}

func TestDispatcher_MalformedPayloadTouchesNoState(t *testing.T) {
	store := newFakeStore()

	dispatcher := service.NewDispatcher(store, newFakeFetcher(), &fakePublisher{}, zap.NewNop())

	err := dispatcher.HandleMessage(context.Background(), commandBody("CreateDevice", `{"flatId":""}`))

	var validationErr *events.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	if store.mutations != 0 {
		t.Errorf("Expected no store mutations, got %d", store.mutations)
	}
}
