package protocol

import (
	"fmt"
	"math"
)

// Device command grammar: ASCII, CR/LF terminated.
const (
	cmdRequestConfig = "#0C0"
	cmdStartSweep    = "#0C3"
	cmdStopSweep     = "#0CH"
	cmdSetRange      = "#0C2-F:%07d,%07d"

	commandTerminator = "\r\n"

	// The start/span fields are zero-padded to 7 digits.
	maxFieldKHz = 9_999_999
)

// RequestConfig asks the device to report its current sweep configuration.
func RequestConfig() []byte {
	return []byte(cmdRequestConfig + commandTerminator)
}

// StartSweep switches the device into continuous sweep mode.
func StartSweep() []byte {
	return []byte(cmdStartSweep + commandTerminator)
}

// StopSweep holds the device, stopping sweep delivery.
func StopSweep() []byte {
	return []byte(cmdStopSweep + commandTerminator)
}

// SetFrequencyRange encodes a span change as zero-padded kHz start/span
// fields. Values are rounded to the device's 1 kHz resolution.
func SetFrequencyRange(startMHz, endMHz float64) ([]byte, error) {
	if endMHz <= startMHz {
		return nil, fmt.Errorf("invalid range: end %.3f MHz must exceed start %.3f MHz", endMHz, startMHz)
	}
	startKHz := int(math.Round(startMHz * 1000))
	spanKHz := int(math.Round((endMHz - startMHz) * 1000))
	if startKHz < 0 || startKHz > maxFieldKHz {
		return nil, fmt.Errorf("start %.3f MHz outside encodable range", startMHz)
	}
	if spanKHz > maxFieldKHz {
		return nil, fmt.Errorf("span %.3f MHz outside encodable range", endMHz-startMHz)
	}
	return []byte(fmt.Sprintf(cmdSetRange+commandTerminator, startKHz, spanKHz)), nil
}
