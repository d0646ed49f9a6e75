package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/septivank/flat-telemetry-worker/tools/timeparser"
	"go.uber.org/zap"
)

// MeasurementValue is one timestamped reading from a room snapshot.
type MeasurementValue struct {
	Timestamp time.Time
	Value     float64
}

// RoomMeasurement is the current temperature and meter reading of one room.
type RoomMeasurement struct {
	RoomNr      int
	Temperature MeasurementValue
	MeterValue  MeasurementValue
}

// Client fetches room-measurement snapshots from the telemetry provider.
type Client struct {
	baseURL     string
	credentials string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a telemetry client. credentials is the pre-encoded
// basic-auth token, passed as-is in the Authorization header.
func NewClient(baseURL, credentials string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// wire types: timestamps arrive as either RFC3339 strings or epoch millis,
// so they are decoded through timeparser rather than time.Time directly.
type measurementValueWire struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Value     float64         `json:"value"`
}

type roomMeasurementWire struct {
	RoomNr      int                  `json:"roomNr"`
	Temperature measurementValueWire `json:"temperature"`
	MeterValue  measurementValueWire `json:"meterValue"`
}

type snapshotResponse struct {
	Rooms []roomMeasurementWire `json:"rooms"`
}

// FetchRoomMeasurements fetches the current snapshot for a flat.
func (c *Client) FetchRoomMeasurements(ctx context.Context, flatID string) ([]RoomMeasurement, error) {
	endpoint := fmt.Sprintf("%s/flat/%s/measurements/", c.baseURL, url.PathEscape(flatID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.credentials)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot for flat %s: %w", flatID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("snapshot request for flat %s returned status %d", flatID, resp.StatusCode)
	}

	var snapshot snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for flat %s: %w", flatID, err)
	}

	rooms := make([]RoomMeasurement, 0, len(snapshot.Rooms))
	for _, room := range snapshot.Rooms {
		rm, err := room.toRoomMeasurement()
		if err != nil {
			return nil, fmt.Errorf("malformed snapshot for flat %s: %w", flatID, err)
		}
		rooms = append(rooms, rm)
	}

	c.logger.Debug("fetched telemetry snapshot",
		zap.String("flat_id", flatID),
		zap.Int("room_count", len(rooms)),
	)

	return rooms, nil
}

func (w roomMeasurementWire) toRoomMeasurement() (RoomMeasurement, error) {
	tempTS, err := timeparser.ParseProviderTimestamp(string(w.Temperature.Timestamp))
	if err != nil {
		return RoomMeasurement{}, fmt.Errorf("room %d temperature: %w", w.RoomNr, err)
	}
	meterTS, err := timeparser.ParseProviderTimestamp(string(w.MeterValue.Timestamp))
	if err != nil {
		return RoomMeasurement{}, fmt.Errorf("room %d meterValue: %w", w.RoomNr, err)
	}
	return RoomMeasurement{
		RoomNr:      w.RoomNr,
		Temperature: MeasurementValue{Timestamp: tempTS, Value: w.Temperature.Value},
		MeterValue:  MeasurementValue{Timestamp: meterTS, Value: w.MeterValue.Value},
	}, nil
}
