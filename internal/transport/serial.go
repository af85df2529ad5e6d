package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sb "spectrum_bridge"

	"go.bug.st/serial"
)

// Fixed line settings for the local serial session: 500000 baud, 8 data
// bits, 1 stop bit, no parity.
const (
	serialBaudRate = 500000
	serialDataBits = 8
	readBufSize    = 4096
)

// SerialTransport is the local serial-port session.
type SerialTransport struct {
	device string
	cb     Callbacks
	sm     stateMachine

	mu   sync.Mutex
	port serial.Port
	done chan struct{}

	// openPort is serial.Open in production; tests inject a fake port.
	openPort func(device string, mode *serial.Mode) (serial.Port, error)
}

var _ Transport = (*SerialTransport)(nil)

func NewSerial(device string, cb Callbacks) *SerialTransport {
	t := &SerialTransport{
		device:   device,
		cb:       cb,
		openPort: serial.Open,
	}
	t.sm.notify = cb.OnState
	return t
}

func (t *SerialTransport) State() sb.ConnectionState {
	return t.sm.current()
}

// Connect opens the device with the fixed line settings and starts the
// read pump.
func (t *SerialTransport) Connect(ctx context.Context) error {
	if !t.sm.swap(sb.Disconnected, sb.Connecting) {
		return &Error{Code: DeviceBusy, Op: "connect", Err: errors.New("transport already active")}
	}
	if err := ctx.Err(); err != nil {
		t.sm.set(sb.Disconnected)
		return &Error{Code: Closed, Op: "connect", Err: err}
	}

	mode := &serial.Mode{
		BaudRate: serialBaudRate,
		DataBits: serialDataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := t.openPort(t.device, mode)
	if err != nil {
		t.sm.set(sb.Disconnected)
		return &Error{Code: classifySerialError(err), Op: "connect", Err: err}
	}

	t.mu.Lock()
	t.port = port
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.sm.set(sb.Open)
	go t.readPump(port, done)
	return nil
}

// Send writes one command to the port.
func (t *SerialTransport) Send(b []byte) error {
	if t.sm.current() != sb.Open {
		return &Error{Code: NotOpen, Op: "send"}
	}
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return &Error{Code: NotOpen, Op: "send"}
	}
	n, err := port.Write(b)
	if err != nil {
		return &Error{Code: Closed, Op: "send", Err: err}
	}
	if n != len(b) {
		return &Error{Code: Closed, Op: "send", Err: fmt.Errorf("short write: %d of %d bytes", n, len(b))}
	}
	return nil
}

// Disconnect releases the port. Idempotent; teardown errors are swallowed
// so the transport always lands in Disconnected.
func (t *SerialTransport) Disconnect() error {
	if t.sm.current() == sb.Disconnected {
		return nil
	}
	t.sm.set(sb.Closing)

	t.mu.Lock()
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	if t.port != nil {
		_ = t.port.Close() // swallowed: disconnect must complete
		t.port = nil
	}
	t.mu.Unlock()

	t.sm.set(sb.Disconnected)
	return nil
}

// readPump forwards chunks until the port errors or the transport closes.
// A read error outside an explicit disconnect tears the session down the
// same way a disconnect would.
func (t *SerialTransport) readPump(port serial.Port, done chan struct{}) {
	buf := make([]byte, readBufSize)
	for {
		n, err := port.Read(buf)
		select {
		case <-done:
			return
		default:
		}
		if err != nil {
			if t.cb.OnError != nil {
				t.cb.OnError(&Error{Code: Closed, Op: "read", Err: err})
			}
			_ = t.Disconnect()
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		if t.cb.OnChunk != nil {
			t.cb.OnChunk(chunk)
		}
	}
}

// classifySerialError maps library errors onto the transport taxonomy.
func classifySerialError(err error) ErrorCode {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortBusy:
			return DeviceBusy
		case serial.PermissionDenied:
			return PermissionDenied
		case serial.PortNotFound, serial.InvalidSerialPort, serial.FunctionNotImplemented:
			return NotSupported
		}
	}
	return NotSupported
}
