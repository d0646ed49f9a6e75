package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates a new structured logger
func NewLogger(serviceName string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// WithFlatID returns a logger with flat_id field
func WithFlatID(logger *zap.Logger, flatID string) *zap.Logger {
	return logger.With(zap.String("flat_id", flatID))
}

// WithEventID returns a logger with event_id field
func WithEventID(logger *zap.Logger, eventID string) *zap.Logger {
	return logger.With(zap.String("event_id", eventID))
}
