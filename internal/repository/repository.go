package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/flat-telemetry-worker/internal/db"
)

const uniqueViolationCode = "23505"

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PullEnabledFlats returns all flats currently flagged for polling.
func (r *Repository) PullEnabledFlats(ctx context.Context) ([]db.RegisteredFlat, error) {
	query := `
		SELECT flat_id, pull_enabled, created_at
		FROM registered_flats
		WHERE pull_enabled
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pull-enabled flats: %w", err)
	}
	defer rows.Close()

	var flats []db.RegisteredFlat
	for rows.Next() {
		var flat db.RegisteredFlat
		if err := rows.Scan(&flat.FlatID, &flat.PullEnabled, &flat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flat: %w", err)
		}
		flats = append(flats, flat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return flats, nil
}

// CreateFlat registers a flat with polling disabled. Returns
// db.ErrDuplicateFlat if the flat is already registered.
func (r *Repository) CreateFlat(ctx context.Context, flatID string) error {
	query := `
		INSERT INTO registered_flats (flat_id, pull_enabled)
		VALUES ($1, FALSE)
	`

	if _, err := r.pool.Exec(ctx, query, flatID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("flat %s: %w", flatID, db.ErrDuplicateFlat)
		}
		return fmt.Errorf("failed to register flat: %w", err)
	}

	return nil
}

// DeleteFlat removes a flat registration. Returns db.ErrNotFound if no row
// matched.
func (r *Repository) DeleteFlat(ctx context.Context, flatID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registered_flats WHERE flat_id = $1`, flatID)
	if err != nil {
		return fmt.Errorf("failed to delete flat registration: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("flat %s: %w", flatID, db.ErrNotFound)
	}

	return nil
}

// SetFlatPull flips the pull flag for a flat. Update-if-present: a missing
// flat is not an error and creates nothing.
func (r *Repository) SetFlatPull(ctx context.Context, flatID string, pull bool) error {
	query := `
		UPDATE registered_flats
		SET pull_enabled = $2
		WHERE flat_id = $1
	`

	if _, err := r.pool.Exec(ctx, query, flatID, pull); err != nil {
		return fmt.Errorf("failed to update pull flag: %w", err)
	}

	return nil
}

// DevicesByFlat returns all devices registered for a flat.
func (r *Repository) DevicesByFlat(ctx context.Context, flatID string) ([]db.Device, error) {
	query := `
		SELECT device_id, flat_id, room_nr, name, created_at
		FROM devices
		WHERE flat_id = $1
		ORDER BY room_nr
	`

	rows, err := r.pool.Query(ctx, query, flatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// AllDevices returns every registered device.
func (r *Repository) AllDevices(ctx context.Context) ([]db.Device, error) {
	query := `
		SELECT device_id, flat_id, room_nr, name, created_at
		FROM devices
		ORDER BY flat_id, room_nr
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// DeviceByID returns one device or db.ErrNotFound.
func (r *Repository) DeviceByID(ctx context.Context, deviceID uuid.UUID) (*db.Device, error) {
	query := `
		SELECT device_id, flat_id, room_nr, name, created_at
		FROM devices
		WHERE device_id = $1
	`

	var device db.Device
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&device.DeviceID,
		&device.FlatID,
		&device.RoomNr,
		&device.Name,
		&device.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return &device, nil
}

// RenameDevice updates a device's display name and returns the updated row,
// or db.ErrNotFound.
func (r *Repository) RenameDevice(ctx context.Context, deviceID uuid.UUID, name string) (*db.Device, error) {
	query := `
		UPDATE devices
		SET name = $2
		WHERE device_id = $1
		RETURNING device_id, flat_id, room_nr, name, created_at
	`

	var device db.Device
	err := r.pool.QueryRow(ctx, query, deviceID, name).Scan(
		&device.DeviceID,
		&device.FlatID,
		&device.RoomNr,
		&device.Name,
		&device.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rename device: %w", err)
	}

	return &device, nil
}

// CreateDevices bulk-inserts devices. Statements are batched; there is no
// cross-row transaction, matching the store's unordered bulk-write contract.
func (r *Repository) CreateDevices(ctx context.Context, devices []db.Device) error {
	if len(devices) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, device := range devices {
		batch.Queue(
			`INSERT INTO devices (device_id, flat_id, room_nr, name) VALUES ($1, $2, $3, $4)`,
			device.DeviceID, device.FlatID, device.RoomNr, device.Name,
		)
	}

	return r.sendBatch(ctx, batch, "failed to insert devices")
}

// CreateEmptyMeasurements bulk-inserts one empty measurement log per device.
func (r *Repository) CreateEmptyMeasurements(ctx context.Context, deviceIDs []uuid.UUID) error {
	if len(deviceIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range deviceIDs {
		batch.Queue(`INSERT INTO measurements (device_id, samples) VALUES ($1, '[]'::jsonb)`, id)
	}

	return r.sendBatch(ctx, batch, "failed to insert measurement logs")
}

// AppendSamples appends samples to device measurement logs with set
// semantics: a sample identical to one already present is a no-op, anything
// differing in any field is appended. Each update is a single atomic
// statement per device.
func (r *Repository) AppendSamples(ctx context.Context, appends []db.SampleAppend) error {
	if len(appends) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range appends {
		element, err := json.Marshal([]db.Sample{a.Sample})
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		batch.Queue(
			`UPDATE measurements
			 SET samples = samples || $2::jsonb
			 WHERE device_id = $1 AND NOT samples @> $2::jsonb`,
			a.DeviceID, string(element),
		)
	}

	return r.sendBatch(ctx, batch, "failed to append samples")
}

// DeleteMeasurements bulk-deletes measurement logs by device id.
func (r *Repository) DeleteMeasurements(ctx context.Context, deviceIDs []uuid.UUID) error {
	if len(deviceIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range deviceIDs {
		batch.Queue(`DELETE FROM measurements WHERE device_id = $1`, id)
	}

	return r.sendBatch(ctx, batch, "failed to delete measurement logs")
}

// DeleteDevicesByFlat removes all devices of a flat.
func (r *Repository) DeleteDevicesByFlat(ctx context.Context, flatID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE flat_id = $1`, flatID); err != nil {
		return fmt.Errorf("failed to delete devices: %w", err)
	}
	return nil
}

// MeasurementValues returns the sample log of one device, or db.ErrNotFound
// when the device has no measurement log.
func (r *Repository) MeasurementValues(ctx context.Context, deviceID uuid.UUID) ([]db.Sample, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT samples FROM measurements WHERE device_id = $1`, deviceID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("measurement log %s: %w", deviceID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement log: %w", err)
	}

	var samples []db.Sample
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}

	return samples, nil
}

// MeasurementStatus returns the singleton poll-freshness record, or
// db.ErrNotFound before the first completed cycle.
func (r *Repository) MeasurementStatus(ctx context.Context) (*db.MeasurementStatus, error) {
	var status db.MeasurementStatus
	err := r.pool.QueryRow(ctx,
		`SELECT last_update, time_diff_ms FROM measurement_status WHERE id = 1`,
	).Scan(&status.LastUpdate, &status.TimeDiffInMillis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("measurement status: %w", db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement status: %w", err)
	}

	return &status, nil
}

// SaveMeasurementStatus creates or overwrites the singleton status record.
func (r *Repository) SaveMeasurementStatus(ctx context.Context, status db.MeasurementStatus) error {
	query := `
		INSERT INTO measurement_status (id, last_update, time_diff_ms)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET last_update = EXCLUDED.last_update, time_diff_ms = EXCLUDED.time_diff_ms
	`

	if _, err := r.pool.Exec(ctx, query, status.LastUpdate, status.TimeDiffInMillis); err != nil {
		return fmt.Errorf("failed to save measurement status: %w", err)
	}

	return nil
}

// RoomMeterValueRanges aggregates min/max meter values per room for samples
// taken at or after since. Returns db.ErrNotFound when the flat has no
// devices.
func (r *Repository) RoomMeterValueRanges(ctx context.Context, flatID string, since time.Time) ([]db.RoomMeterValueRange, error) {
	var deviceCount int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM devices WHERE flat_id = $1`, flatID).Scan(&deviceCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}
	if deviceCount == 0 {
		return nil, fmt.Errorf("flat %s: %w", flatID, db.ErrNotFound)
	}

	query := `
		SELECT d.room_nr,
		       MIN((s->>'meterValue')::double precision),
		       MAX((s->>'meterValue')::double precision)
		FROM devices d
		JOIN measurements m ON m.device_id = d.device_id
		CROSS JOIN LATERAL jsonb_array_elements(m.samples) s
		WHERE d.flat_id = $1
		  AND (s->>'timestamp')::bigint >= $2
		GROUP BY d.room_nr
		ORDER BY d.room_nr
	`

	rows, err := r.pool.Query(ctx, query, flatID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query meter value ranges: %w", err)
	}
	defer rows.Close()

	var ranges []db.RoomMeterValueRange
	for rows.Next() {
		var rr db.RoomMeterValueRange
		if err := rows.Scan(&rr.RoomNr, &rr.MinMeterValue, &rr.MaxMeterValue); err != nil {
			return nil, fmt.Errorf("failed to scan meter value range: %w", err)
		}
		ranges = append(ranges, rr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ranges, nil
}

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch, failMsg string) error {
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s: %w", failMsg, err)
		}
	}

	return nil
}

func scanDevices(rows pgx.Rows) ([]db.Device, error) {
	var devices []db.Device
	for rows.Next() {
		var device db.Device
		if err := rows.Scan(&device.DeviceID, &device.FlatID, &device.RoomNr, &device.Name, &device.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return devices, nil
}
