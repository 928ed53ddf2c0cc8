package consensus

import (
	"sync"
)

// Publication sends an encoded BackupQuery frame toward a single consensus
// endpoint. Implementations must not block: TryOffer returns false when the
// frame could not be sent this cycle (e.g. back pressure) so the agent can
// retry on a later duty cycle, mirroring Aeron publication offer semantics.
type Publication interface {
	// Connected reports whether the publication has a live destination.
	Connected() bool
	TryOffer(frame []byte) bool
	Close() error
}

// Subscription receives encoded BackupResponse frames addressed to this
// agent's response channel. Poll is non-blocking and returns at most one
// frame per call.
type Subscription interface {
	Poll() ([]byte, bool)
	Close() error
}

// Transport opens the publication/subscription pair the agent needs to
// exchange a single backup query/response round trip with a candidate
// endpoint.
type Transport interface {
	NewPublication(consensusEndpoint string) (Publication, error)
	NewSubscription(responseChannel string, responseStreamID int32) (Subscription, error)
}

// FakeTransport is an in-process, channel-backed Transport used by
// pkg/backup's tests. Grounded on the teacher's pkg/events/events.go
// channel pub/sub idiom, repurposed here as point-to-point request/response
// rather than fan-out broadcast.
type FakeTransport struct {
	mu      sync.Mutex
	inboxes map[string]chan []byte // keyed by responseChannel
	sent    map[string][][]byte    // keyed by consensus endpoint
}

// NewFakeTransport returns an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{inboxes: make(map[string]chan []byte)}
}

// NewPublication returns a publication that records every offered frame for
// Sent and delivers none of them to any subscription: the fake has no
// routing logic of its own, so tests use DeliverResponse to inject a
// response directly into a subscription's inbox, and use the returned
// fakePublication only to observe what the agent sent.
func (t *FakeTransport) NewPublication(consensusEndpoint string) (Publication, error) {
	return &fakePublication{transport: t, endpoint: consensusEndpoint, connected: true}, nil
}

// NewSubscription allocates (or reuses) the inbox for responseChannel.
func (t *FakeTransport) NewSubscription(responseChannel string, _ int32) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.inboxes[responseChannel]
	if !ok {
		ch = make(chan []byte, 8)
		t.inboxes[responseChannel] = ch
	}
	return &fakeSubscription{ch: ch}, nil
}

// DeliverResponse injects an encoded response frame into the subscription
// listening on responseChannel, as if the leader had replied.
func (t *FakeTransport) DeliverResponse(responseChannel string, frame []byte) {
	t.mu.Lock()
	ch, ok := t.inboxes[responseChannel]
	if !ok {
		ch = make(chan []byte, 8)
		t.inboxes[responseChannel] = ch
	}
	t.mu.Unlock()
	ch <- frame
}

// Sent returns every frame offered to publications for the given endpoint,
// in order.
func (t *FakeTransport) Sent(endpoint string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sentByEndpoint(endpoint)...)
}

func (t *FakeTransport) sentByEndpoint(endpoint string) [][]byte {
	return t.sent[endpoint]
}

type fakePublication struct {
	transport *FakeTransport
	endpoint  string
	connected bool
}

func (p *fakePublication) Connected() bool { return p.connected }

func (p *fakePublication) TryOffer(frame []byte) bool {
	p.transport.mu.Lock()
	defer p.transport.mu.Unlock()
	if p.transport.sent == nil {
		p.transport.sent = make(map[string][][]byte)
	}
	p.transport.sent[p.endpoint] = append(p.transport.sent[p.endpoint], frame)
	return true
}

func (p *fakePublication) Close() error { return nil }

type fakeSubscription struct {
	ch chan []byte
}

func (s *fakeSubscription) Poll() ([]byte, bool) {
	select {
	case frame := <-s.ch:
		return frame, true
	default:
		return nil, false
	}
}

func (s *fakeSubscription) Close() error { return nil }
