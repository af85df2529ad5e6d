package service

import (
	"time"

	sb "spectrum_bridge"
)

// RangeParams is a frequency-span change request in MHz.
type RangeParams struct {
	StartMHz float64
	EndMHz   float64
}

// LogFilter supports event-log filtering by time range and kind.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Kind string    // "", "CRITICAL", "WARNING"
}

// Status is the session view served to the control API. HasData is false
// until the first sweep has been decoded — a stalled device shows as
// "no data", never as an error.
type Status struct {
	ConnectionState string         `json:"connection_state"`
	Config          sb.SweepConfig `json:"config"`
	HasData         bool           `json:"has_data"`
}
