package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/septivank/flat-telemetry-worker/internal/db"
	"go.uber.org/zap"
)

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.AllDevices(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", zap.Error(err))
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []db.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	device, err := s.store.DeviceByID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", zap.Error(err))
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// handleRenameDevice updates a device's display name.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Name == "" {
		writeBadRequest(w, "name must not be empty")
		return
	}

	device, err := s.store.RenameDevice(r.Context(), deviceID, body.Name)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to rename device", zap.Error(err))
		writeInternalError(w, "failed to rename device")
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// handleDeviceMeasurements returns the measurement log of a device.
func (s *Server) handleDeviceMeasurements(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	samples, err := s.store.MeasurementValues(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeNotFound(w, "measurements not found")
			return
		}
		s.logger.Error("failed to read measurements", zap.Error(err))
		writeInternalError(w, "failed to read measurements")
		return
	}
	if samples == nil {
		samples = []db.Sample{}
	}

	writeJSON(w, http.StatusOK, samples)
}

// handleMeasurementStatus returns the poll freshness record.
func (s *Server) handleMeasurementStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.MeasurementStatus(r.Context())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeNotFound(w, "no poll cycle has completed yet")
			return
		}
		s.logger.Error("failed to read measurement status", zap.Error(err))
		writeInternalError(w, "failed to read measurement status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleRoomMeterValues returns per-room min/max meter values for samples
// taken at or after the start query parameter (RFC3339).
func (s *Server) handleRoomMeterValues(w http.ResponseWriter, r *http.Request) {
	flatID := chi.URLParam(r, "flatId")

	startParam := r.URL.Query().Get("start")
	if startParam == "" {
		writeBadRequest(w, "start query parameter is required")
		return
	}
	start, err := time.Parse(time.RFC3339, startParam)
	if err != nil {
		writeBadRequest(w, "start must be an RFC3339 timestamp")
		return
	}

	ranges, err := s.store.RoomMeterValueRanges(r.Context(), flatID, start)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeNotFound(w, "flat not found")
			return
		}
		s.logger.Error("failed to aggregate meter values", zap.Error(err))
		writeInternalError(w, "failed to aggregate meter values")
		return
	}
	if ranges == nil {
		ranges = []db.RoomMeterValueRange{}
	}

	writeJSON(w, http.StatusOK, ranges)
}

func parseDeviceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return uuid.Nil, false
	}
	return deviceID, true
}
