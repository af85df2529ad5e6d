package transport

import (
	"context"
	"fmt"
	"sync"

	sb "spectrum_bridge"
)

// ErrorCode classifies transport failures surfaced to the session owner.
type ErrorCode string

const (
	NotSupported     ErrorCode = "NOT_SUPPORTED"
	PermissionDenied ErrorCode = "PERMISSION_DENIED"
	DeviceBusy       ErrorCode = "DEVICE_BUSY"
	Closed           ErrorCode = "CLOSED"
	NotOpen          ErrorCode = "NOT_OPEN"
)

// Error is a classified transport failure. Sessions do not retry on these;
// the transport has already returned to Disconnected when one is surfaced
// from Connect.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("transport %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Callbacks push inbound data and lifecycle changes to the owning session.
// OnChunk delivers chunks of transport-defined, arbitrary size; chunk
// boundaries never align with message boundaries by contract. OnControl
// receives the remote channel's JSON control messages and is nil for the
// serial transport. OnError reports a mid-session read failure; the
// transport has already begun tearing down to Disconnected when it fires.
type Callbacks struct {
	OnChunk   func([]byte)
	OnState   func(sb.ConnectionState)
	OnControl func(ControlMessage)
	OnError   func(error)
}

// Transport is the uniform duplex byte-stream abstraction over the local
// serial session and the remote socket session.
type Transport interface {
	// Connect negotiates the channel and moves
	// Disconnected -> Connecting -> Open. On failure it reverts to
	// Disconnected and returns a classified *Error.
	Connect(ctx context.Context) error
	// Send writes one encoded command. Sending on anything but an Open
	// transport fails with NotOpen.
	Send(b []byte) error
	// Disconnect is idempotent and always ends in Disconnected; teardown
	// step errors are swallowed to guarantee forward progress.
	Disconnect() error
	State() sb.ConnectionState
}

// stateMachine serializes lifecycle transitions and fans them out to the
// owner's callback outside the lock.
type stateMachine struct {
	mu     sync.Mutex
	state  sb.ConnectionState
	notify func(sb.ConnectionState)
}

func (m *stateMachine) current() sb.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) set(to sb.ConnectionState) {
	m.mu.Lock()
	changed := m.state != to
	m.state = to
	notify := m.notify
	m.mu.Unlock()
	if changed && notify != nil {
		notify(to)
	}
}

// swap moves from->to atomically; it reports false if the machine was not
// in from.
func (m *stateMachine) swap(from, to sb.ConnectionState) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	notify := m.notify
	m.mu.Unlock()
	if notify != nil {
		notify(to)
	}
	return true
}
