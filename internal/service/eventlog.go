package service

import (
	"context"
	"errors"
	"strings"
	"time"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/repository"
)

// EventLogService reads the persisted threshold-event log; recent events
// come from the pipeline's in-memory ring without touching storage.
type EventLogService struct {
	eventRepo repository.EventRepo
	pipeline  *PipelineService
}

func NewEventLogService(eventRepo repository.EventRepo, pipeline *PipelineService) *EventLogService {
	return &EventLogService{eventRepo: eventRepo, pipeline: pipeline}
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeKind trims spaces and uppercases the kind filter.
func normalizeKind(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	return from, to, normalizeKind(f.Kind), nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]sb.LogEvent, error) {
	from, to, kind, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, kind)
}

// Recent returns the capped in-memory tail, oldest first.
func (s *EventLogService) Recent(ctx context.Context) []sb.LogEvent {
	return s.pipeline.RecentEvents()
}
