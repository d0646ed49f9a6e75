package service

import (
	"context"
	"errors"
	"time"

	"github.com/septivank/flat-telemetry-worker/internal/db"
	"github.com/septivank/flat-telemetry-worker/internal/logging"
	"github.com/septivank/flat-telemetry-worker/internal/telemetry"
	"go.uber.org/zap"
)

// Poller reconciles telemetry snapshots into device measurement logs on a
// fixed interval. One flat failing never aborts the cycle for the others,
// and the freshness record is updated exactly once per cycle either way.
type Poller struct {
	store    Store
	fetcher  SnapshotFetcher
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewPoller creates a new measurement poller
func NewPoller(store Store, fetcher SnapshotFetcher, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		store:    store,
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes reconciliation cycles until the context is cancelled.
// Cycles run inline in this goroutine, so they never overlap; a tick that
// fires while a cycle is still running is dropped by the ticker.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("measurement poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("measurement poller stopped")
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full reconciliation pass over all pull-enabled
// flats and then updates the freshness record.
func (p *Poller) RunCycle(ctx context.Context) {
	p.logger.Debug("poll measurements")

	flats, err := p.store.PullEnabledFlats(ctx)
	if err != nil {
		p.logger.Error("failed to load pull-enabled flats", zap.Error(err))
	} else {
		for _, flat := range flats {
			p.reconcileFlat(ctx, flat.FlatID)
		}
	}

	p.updateStatus(ctx)
}

func (p *Poller) reconcileFlat(ctx context.Context, flatID string) {
	flatLogger := logging.WithFlatID(p.logger, flatID)

	rooms, err := p.fetcher.FetchRoomMeasurements(ctx, flatID)
	if err != nil {
		flatLogger.Warn("snapshot fetch failed, skipping flat this cycle", zap.Error(err))
		return
	}

	devices, err := p.store.DevicesByFlat(ctx, flatID)
	if err != nil {
		flatLogger.Error("failed to load flat devices", zap.Error(err))
		return
	}

	byRoom := make(map[int]telemetry.RoomMeasurement, len(rooms))
	for _, room := range rooms {
		byRoom[room.RoomNr] = room
	}

	appends := make([]db.SampleAppend, 0, len(devices))
	for _, device := range devices {
		room, ok := byRoom[device.RoomNr]
		if !ok {
			// no reading for this room this cycle
			continue
		}
		appends = append(appends, db.SampleAppend{
			DeviceID: device.DeviceID,
			Sample: db.Sample{
				Timestamp:   room.Temperature.Timestamp.UnixMilli(),
				Temperature: room.Temperature.Value,
				MeterValue:  room.MeterValue.Value,
			},
		})
	}

	if len(appends) == 0 {
		return
	}

	if err := p.store.AppendSamples(ctx, appends); err != nil {
		flatLogger.Error("failed to append samples", zap.Error(err))
		return
	}

	flatLogger.Debug("flat reconciled", zap.Int("sample_count", len(appends)))
}

func (p *Poller) updateStatus(ctx context.Context) {
	now := p.now()

	status, err := p.store.MeasurementStatus(ctx)
	if errors.Is(err, db.ErrNotFound) {
		if saveErr := p.store.SaveMeasurementStatus(ctx, db.MeasurementStatus{LastUpdate: now, TimeDiffInMillis: 0}); saveErr != nil {
			p.logger.Error("failed to create measurement status", zap.Error(saveErr))
		}
		return
	}
	if err != nil {
		p.logger.Error("failed to load measurement status", zap.Error(err))
		return
	}

	updated := db.MeasurementStatus{
		LastUpdate:       now,
		TimeDiffInMillis: now.Sub(status.LastUpdate).Milliseconds(),
	}
	if err := p.store.SaveMeasurementStatus(ctx, updated); err != nil {
		p.logger.Error("failed to update measurement status", zap.Error(err))
	}
}
