// Package httpapi exposes read-only projections over the state maintained
// by the dispatcher and the poller. It never mutates device or measurement
// identity; the only write is the cosmetic device rename.
package httpapi

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/septivank/flat-telemetry-worker/internal/db"
	"go.uber.org/zap"
)

// ReadStore is the query surface the API serves. Implemented by
// repository.Repository.
type ReadStore interface {
	AllDevices(ctx context.Context) ([]db.Device, error)
	DeviceByID(ctx context.Context, deviceID uuid.UUID) (*db.Device, error)
	RenameDevice(ctx context.Context, deviceID uuid.UUID, name string) (*db.Device, error)
	MeasurementValues(ctx context.Context, deviceID uuid.UUID) ([]db.Sample, error)
	MeasurementStatus(ctx context.Context) (*db.MeasurementStatus, error)
	RoomMeterValueRanges(ctx context.Context, flatID string, since time.Time) ([]db.RoomMeterValueRange, error)
}

// Server serves the device query API.
type Server struct {
	store  ReadStore
	logger *zap.Logger
}

// NewServer creates a new query API server
func NewServer(store ReadStore, logger *zap.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Router builds the chi router for the query API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Get("/measurements/status", s.handleMeasurementStatus)
		r.Get("/{id}", s.handleGetDevice)
		r.Patch("/{id}", s.handleRenameDevice)
		r.Get("/{id}/measurements", s.handleDeviceMeasurements)
	})

	r.Get("/flats/{flatId}/rooms/meter-values", s.handleRoomMeterValues)

	return r
}
