package archive

import (
	"context"
	"sync"
	"sync/atomic"
)

// FakeConnector is a deterministic, in-memory Connector used by pkg/backup's
// own tests. It has no goroutines and no I/O: every request is answered
// immediately on the next PollResponse/PollSignal call, matching the
// teacher's preference for exercising a real collaborator directly in tests
// (pkg/storage's BoltStore) over a generated mock.
type FakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*FakeClient
	nextID   int64
}

// NewFakeConnector returns an empty fake connector.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{sessions: make(map[string]*FakeClient)}
}

// Connect returns the FakeClient registered for endpoint, creating a new one
// with default state if none has been configured yet.
func (c *FakeConnector) Connect(_ context.Context, endpoint string) (RemoteClient, error) {
	return c.Session(endpoint), nil
}

// Session returns (creating if needed) the fake client for an endpoint, so
// tests can script its responses before the agent connects.
func (c *FakeConnector) Session(endpoint string) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fc, ok := c.sessions[endpoint]; ok {
		return fc
	}
	c.nextID++
	fc := newFakeClient(c.nextID)
	c.sessions[endpoint] = fc
	return fc
}

// FakeClient is a scriptable, in-memory client implementing both
// RemoteClient and LocalClient, so the same fake backs either role in
// tests.
type FakeClient struct {
	mu sync.Mutex

	controlSessionID int64
	nextCorrelation  int64
	nextSubscription int64

	responses []ControlResponse
	signals   []RecordingSignal

	// StopPositionFor is consulted by RequestStopPosition/StopPositionSync
	// to synthesize a response; tests set this before driving the agent.
	StopPositionFor map[int64]int64

	// NextRecordingID is not read by StartRecordingSync or any other
	// method; recording ids reach the agent only through queued signals and
	// MakeSessionVisible.
	NextRecordingID int64

	positionCounters map[int32]*fakePositionCounter
	sessionVisible   map[int32]bool

	stoppedSubscriptions []int64

	closed bool
}

func newFakeClient(controlSessionID int64) *FakeClient {
	return &FakeClient{
		controlSessionID: controlSessionID,
		StopPositionFor:  make(map[int64]int64),
		NextRecordingID:  1,
		positionCounters: make(map[int32]*fakePositionCounter),
		sessionVisible:   make(map[int32]bool),
	}
}

// MakeSessionVisible marks a replay/recording session's position counter as
// discoverable, simulating the archive publishing it. recordingID is the
// recording the session maps onto.
func (f *FakeClient) MakeSessionVisible(sessionID int32, recordingID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionVisible[sessionID] = true
	if _, ok := f.positionCounters[sessionID]; !ok {
		f.positionCounters[sessionID] = &fakePositionCounter{recordingID: recordingID}
	}
}

// SetRecordingPosition advances the position counter for a session, as tests
// simulating replay progress would.
func (f *FakeClient) SetRecordingPosition(sessionID int32, value int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.positionCounters[sessionID]; ok {
		c.value.Store(value)
	}
}

// SimulateUnavailable marks a session's position counter unavailable,
// invoking any OnUnavailable callback registered against it.
func (f *FakeClient) SimulateUnavailable(sessionID int32) {
	f.mu.Lock()
	c, ok := f.positionCounters[sessionID]
	f.mu.Unlock()
	if ok {
		c.markUnavailable()
	}
}

func (f *FakeClient) ControlSessionID() int64 { return f.controlSessionID }

func (f *FakeClient) nextCorrelationID() int64 {
	f.nextCorrelation++
	return f.nextCorrelation
}

func (f *FakeClient) RequestStopPosition(recordingID int64) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cid := f.nextCorrelationID()
	pos := f.StopPositionFor[recordingID]
	f.responses = append(f.responses, ControlResponse{
		ControlSessionID: f.controlSessionID,
		CorrelationID:    cid,
		RelevantID:       pos,
		Code:             ResponseOK,
	})
	return cid, true
}

func (f *FakeClient) RequestReplay(_ ReplayParams) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cid := f.nextCorrelationID()
	f.responses = append(f.responses, ControlResponse{
		ControlSessionID: f.controlSessionID,
		CorrelationID:    cid,
		RelevantID:       cid, // replay session id, arbitrary but stable
		Code:             ResponseOK,
	})
	return cid, true
}

func (f *FakeClient) RequestBoundedReplay(_ BoundedReplayParams) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cid := f.nextCorrelationID()
	f.responses = append(f.responses, ControlResponse{
		ControlSessionID: f.controlSessionID,
		CorrelationID:    cid,
		RelevantID:       cid,
		Code:             ResponseOK,
	})
	return cid, true
}

func (f *FakeClient) PollResponse() (ControlResponse, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.responses) == 0 {
		return ControlResponse{}, false
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, true
}

func (f *FakeClient) PollSignal() (RecordingSignal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.signals) == 0 {
		return RecordingSignal{}, false
	}
	sig := f.signals[0]
	f.signals = f.signals[1:]
	return sig, true
}

// QueueSignal appends a recording signal to be returned by a future
// PollSignal call.
func (f *FakeClient) QueueSignal(sig RecordingSignal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
}

// QueueErrorResponse appends a control-response error, as a local recording
// monitor would observe if the archive rejected a request.
func (f *FakeClient) QueueErrorResponse(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, ControlResponse{
		ControlSessionID: f.controlSessionID,
		Code:             ResponseError,
		ErrorMessage:     message,
	})
}

func (f *FakeClient) StopPositionSync(recordingID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StopPositionFor[recordingID], nil
}

func (f *FakeClient) StartRecordingSync(_ string, _ int32) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubscription++
	return f.nextSubscription, nil
}

func (f *FakeClient) ExtendRecordingSync(_ int64, _ string, _ int32) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubscription++
	return f.nextSubscription, nil
}

func (f *FakeClient) TryStopRecordingSync(subscriptionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stoppedSubscriptions = append(f.stoppedSubscriptions, subscriptionID)
	return nil
}

// StoppedSubscriptions returns the subscription ids passed to
// TryStopRecordingSync, in call order, for test assertions.
func (f *FakeClient) StoppedSubscriptions() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.stoppedSubscriptions...)
}

func (f *FakeClient) TrackRecordingPosition(sessionID int32) (PositionCounter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.sessionVisible[sessionID] {
		return nil, false
	}
	return f.positionCounters[sessionID], true
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called, for test assertions.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakePositionCounter struct {
	recordingID int64
	value       atomic.Int64
	mu          sync.Mutex
	unavailable bool
	onUnavail   func()
}

func (c *fakePositionCounter) RecordingID() int64 { return c.recordingID }

func (c *fakePositionCounter) Value() int64 { return c.value.Load() }

func (c *fakePositionCounter) OnUnavailable(fn func()) {
	c.mu.Lock()
	alreadyUnavailable := c.unavailable
	if !alreadyUnavailable {
		c.onUnavail = fn
	}
	c.mu.Unlock()

	if alreadyUnavailable {
		fn()
	}
}

func (c *fakePositionCounter) markUnavailable() {
	c.mu.Lock()
	wasUnavailable := c.unavailable
	c.unavailable = true
	fn := c.onUnavail
	c.mu.Unlock()
	if fn != nil && !wasUnavailable {
		fn()
	}
}
