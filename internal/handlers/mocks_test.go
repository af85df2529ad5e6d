package handlers

import (
	"context"
	"sync"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/service"
	"spectrum_bridge/internal/session"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockAuth struct {
	mu         sync.Mutex
	signUpID   int
	signUpErr  error
	token      string
	tokenErr   error
	parsedID   int
	parseErr   error
	lastParsed string
	lastSignUp [2]string
	lastSignIn [2]string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSignUp = [2]string{username, password}
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSignIn = [2]string{username, password}
	return m.token, m.tokenErr
}

func (m *mockAuth) ParseToken(accessToken string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastParsed = accessToken
	return m.parsedID, m.parseErr
}

type mockSweep struct {
	mu        sync.Mutex
	calls     []string
	lastRange service.RangeParams
	err       error
	rangeErr  error
}

func (m *mockSweep) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockSweep) callList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockSweep) Start(ctx context.Context) error { m.record("Start"); return m.err }
func (m *mockSweep) Stop(ctx context.Context) error  { m.record("Stop"); return m.err }

func (m *mockSweep) SetRange(ctx context.Context, p service.RangeParams) error {
	m.record("SetRange")
	m.mu.Lock()
	m.lastRange = p
	m.mu.Unlock()
	return m.rangeErr
}

func (m *mockSweep) RequestConfig(ctx context.Context) error {
	m.record("RequestConfig")
	return m.err
}

func (m *mockSweep) ResetAggregates(ctx context.Context) error {
	m.record("ResetAggregates")
	return m.err
}

type mockMonitoring struct {
	snapshot sb.SpectrumSnapshot
	status   service.Status
	err      error
}

func (m *mockMonitoring) GetSnapshot(ctx context.Context) (sb.SpectrumSnapshot, error) {
	return m.snapshot, m.err
}

func (m *mockMonitoring) GetStatus(ctx context.Context) (service.Status, error) {
	return m.status, m.err
}

type mockEventLog struct {
	mu         sync.Mutex
	listed     []sb.LogEvent
	recent     []sb.LogEvent
	err        error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]sb.LogEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	return m.listed, m.err
}

func (m *mockEventLog) Recent(ctx context.Context) []sb.LogEvent { return m.recent }

// mockPipeline fans the test's injected events to subscribers.
type mockPipeline struct {
	mu     sync.Mutex
	subs   map[int]chan session.Event
	nextID int
}

func newMockPipeline() *mockPipeline {
	return &mockPipeline{subs: map[int]chan session.Event{}}
}

func (m *mockPipeline) Run(ctx context.Context) { <-ctx.Done() }

func (m *mockPipeline) Subscribe() (int, <-chan session.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan session.Event, 32)
	m.subs[id] = ch
	return id, ch
}

func (m *mockPipeline) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *mockPipeline) emit(ev session.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		ch <- ev
	}
}

func (m *mockPipeline) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// testServices bundles the mocks into the aggregate the handler consumes.
type testServices struct {
	auth       *mockAuth
	sweep      *mockSweep
	monitoring *mockMonitoring
	eventLog   *mockEventLog
	pipeline   *mockPipeline
	svc        *service.Service
}

func newTestServices() *testServices {
	ts := &testServices{
		auth:       &mockAuth{parsedID: 1, token: "tok"},
		sweep:      &mockSweep{},
		monitoring: &mockMonitoring{},
		eventLog:   &mockEventLog{},
		pipeline:   newMockPipeline(),
	}
	ts.svc = &service.Service{
		Sweep:         ts.sweep,
		Monitoring:    ts.monitoring,
		EventLog:      ts.eventLog,
		Pipeline:      ts.pipeline,
		Authorization: ts.auth,
	}
	return ts
}

func newTestHandler() (*Handler, *testServices) {
	ts := newTestServices()
	return NewHandler(ts.svc, nil), ts
}
