package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	sb "spectrum_bridge"

	"go.bug.st/serial"
)

// fakePort is an in-memory serial.Port. Reads block until pushed data or
// close, like a real device port.
type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer

	reads     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) push(b []byte) { p.reads <- b }

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.reads:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetMode(*serial.Mode) error          { return nil }
func (p *fakePort) Drain() error                        { return nil }
func (p *fakePort) ResetInputBuffer() error             { return nil }
func (p *fakePort) ResetOutputBuffer() error            { return nil }
func (p *fakePort) SetDTR(bool) error                   { return nil }
func (p *fakePort) SetRTS(bool) error                   { return nil }
func (p *fakePort) SetReadTimeout(time.Duration) error  { return nil }
func (p *fakePort) Break(time.Duration) error           { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

// stateRecorder collects lifecycle transitions thread-safely.
type stateRecorder struct {
	mu     sync.Mutex
	states []sb.ConnectionState
}

func (r *stateRecorder) record(s sb.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []sb.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sb.ConnectionState(nil), r.states...)
}

func newSerialUnderTest(port *fakePort, chunks chan []byte, rec *stateRecorder) *SerialTransport {
	cb := Callbacks{}
	if chunks != nil {
		cb.OnChunk = func(b []byte) { chunks <- b }
	}
	if rec != nil {
		cb.OnState = rec.record
	}
	tr := NewSerial("/dev/ttyTEST", cb)
	tr.openPort = func(device string, mode *serial.Mode) (serial.Port, error) {
		if mode.BaudRate != serialBaudRate || mode.DataBits != serialDataBits {
			return nil, errors.New("unexpected line settings")
		}
		return port, nil
	}
	return tr
}

func TestSerialConnectTransitions(t *testing.T) {
	rec := &stateRecorder{}
	tr := newSerialUnderTest(newFakePort(), nil, rec)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if got := tr.State(); got != sb.Open {
		t.Errorf("state = %v, want Open", got)
	}
	states := rec.snapshot()
	if len(states) < 2 || states[0] != sb.Connecting || states[1] != sb.Open {
		t.Errorf("transitions = %v, want [Connecting Open ...]", states)
	}
}

func TestSerialConnectWhileActive(t *testing.T) {
	tr := newSerialUnderTest(newFakePort(), nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	err := tr.Connect(context.Background())
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != DeviceBusy {
		t.Fatalf("second Connect error = %v, want DEVICE_BUSY", err)
	}
}

func TestSerialConnectOpenFailure(t *testing.T) {
	rec := &stateRecorder{}
	tr := newSerialUnderTest(nil, nil, rec)
	tr.openPort = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	}

	err := tr.Connect(context.Background())
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != NotSupported {
		t.Fatalf("error = %v, want NOT_SUPPORTED", err)
	}
	if tr.State() != sb.Disconnected {
		t.Errorf("state = %v, want Disconnected", tr.State())
	}
}

func TestSerialConnectCancelledContext(t *testing.T) {
	tr := newSerialUnderTest(newFakePort(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Connect(ctx)
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != Closed {
		t.Fatalf("error = %v, want CLOSED", err)
	}
	if tr.State() != sb.Disconnected {
		t.Errorf("state = %v, want Disconnected", tr.State())
	}
}

func TestSerialSendNotOpen(t *testing.T) {
	tr := newSerialUnderTest(newFakePort(), nil, nil)

	err := tr.Send([]byte("#0C0\r\n"))
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != NotOpen {
		t.Fatalf("error = %v, want NOT_OPEN", err)
	}
}

func TestSerialSendWritesWhole(t *testing.T) {
	port := newFakePort()
	tr := newSerialUnderTest(port, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if err := tr.Send([]byte("#0C3\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := string(port.writtenBytes()); got != "#0C3\r\n" {
		t.Errorf("written = %q", got)
	}
}

func TestSerialReadPumpDeliversChunks(t *testing.T) {
	port := newFakePort()
	chunks := make(chan []byte, 1)
	tr := newSerialUnderTest(port, chunks, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	port.push([]byte{0x24, 0x53, 0x02, 0x10, 0x20})

	select {
	case got := <-chunks:
		if !bytes.Equal(got, []byte{0x24, 0x53, 0x02, 0x10, 0x20}) {
			t.Errorf("chunk = %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no chunk delivered")
	}
}

func TestSerialDisconnectIdempotent(t *testing.T) {
	rec := &stateRecorder{}
	tr := newSerialUnderTest(newFakePort(), nil, rec)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}

	states := rec.snapshot()
	want := []sb.ConnectionState{sb.Connecting, sb.Open, sb.Closing, sb.Disconnected}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", states, want)
		}
	}
}

func TestSerialReadErrorTearsDown(t *testing.T) {
	port := newFakePort()
	tr := newSerialUnderTest(port, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Simulate the device vanishing: the blocked Read returns an error.
	port.Close()

	deadline := time.Now().Add(time.Second)
	for tr.State() != sb.Disconnected {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want Disconnected", tr.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSerialReadErrorSurfaces(t *testing.T) {
	port := newFakePort()
	errs := make(chan error, 1)
	tr := NewSerial("/dev/ttyTEST", Callbacks{
		OnError: func(err error) { errs <- err },
	})
	tr.openPort = func(string, *serial.Mode) (serial.Port, error) { return port, nil }
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Device vanishes mid-session; the owner must hear about it, not just
	// see the state flip.
	port.Close()

	select {
	case err := <-errs:
		var terr *Error
		if !errors.As(err, &terr) || terr.Code != Closed {
			t.Errorf("error = %v, want CLOSED", err)
		}
	case <-time.After(time.Second):
		t.Fatal("read failure not reported")
	}
}

func TestSerialReconnectAfterDisconnect(t *testing.T) {
	tr := newSerialUnderTest(newFakePort(), nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tr.Disconnect()

	tr.openPort = func(string, *serial.Mode) (serial.Port, error) {
		return newFakePort(), nil
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer tr.Disconnect()
	if tr.State() != sb.Open {
		t.Errorf("state = %v, want Open", tr.State())
	}
}
