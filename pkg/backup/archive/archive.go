// Package archive models the archive the backup agent reads from and
// writes to as two distinct collaborators, mirroring the distinction the
// original draws between a remote, request/poll archive session and the
// agent's own local archive used through synchronous convenience calls:
//
//   - RemoteClient is the leader's archive, reached over the network. Every
//     operation is a non-blocking Request*/PollResponse pair: submit a
//     request, get a correlation id back, and poll for the matching
//     response on a later duty cycle. Grounded on
//     original_source/aeron-cluster's clusterArchive.archiveProxy() calls
//     (getStopPosition, replay, boundedReplay) plus its
//     ControlResponsePoller.
//   - LocalClient is the agent's own archive, assumed to answer instantly,
//     so its operations are plain synchronous calls. Grounded on the
//     original's backupArchive convenience methods (getStopPosition,
//     startRecording, extendRecording, tryStopRecording) plus its
//     RecordingSignalAdapter for watching a local recording's lifecycle.
//
// Both are explicitly out-of-scope, "assumed correct" external
// collaborators (spec.md §1); the interfaces here exist only so pkg/backup
// can be driven deterministically in tests, not to re-implement an archive.
package archive

import "context"

// ResponseCode mirrors io.aeron.archive.codecs.ControlResponseCode's two
// outcomes relevant here.
type ResponseCode int

const (
	ResponseOK ResponseCode = iota
	ResponseError
)

// ControlResponse is the result of a previously submitted RemoteClient
// request.
type ControlResponse struct {
	ControlSessionID int64
	CorrelationID    int64
	RelevantID       int64
	Code             ResponseCode
	ErrorMessage     string
}

// SignalKind mirrors the subset of io.aeron.archive.codecs.RecordingSignal
// the agent reacts to.
type SignalKind int

const (
	SignalStart SignalKind = iota
	SignalStop
)

// RecordingSignal reports a recording lifecycle event the agent is waiting
// on, e.g. the local archive starting or stopping a snapshot-retrieve
// recording.
type RecordingSignal struct {
	RecordingID    int64
	SubscriptionID int64
	Position       int64
	Signal         SignalKind
}

// ReplayParams describes an unbounded replay request against the leader's
// archive.
type ReplayParams struct {
	RecordingID    int64
	Position       int64
	Length         int64
	ReplayChannel  string
	ReplayStreamID int32
}

// BoundedReplayParams describes a replay bounded by a live counter, used for
// the live-log replay (spec.md §4.7).
type BoundedReplayParams struct {
	RecordingID    int64
	Position       int64
	Length         int64
	LimitCounterID int32
	ReplayChannel  string
	ReplayStreamID int32
}

// RemoteClient is a non-blocking session with the leader's archive.
type RemoteClient interface {
	// ControlSessionID identifies this archive session.
	ControlSessionID() int64

	RequestStopPosition(recordingID int64) (correlationID int64, ok bool)
	RequestReplay(params ReplayParams) (correlationID int64, ok bool)
	RequestBoundedReplay(params BoundedReplayParams) (correlationID int64, ok bool)

	// PollResponse returns the next available control response, if any,
	// without blocking.
	PollResponse() (ControlResponse, bool)

	// Close releases the session.
	Close() error
}

// LocalClient is the agent's own archive, used through synchronous
// convenience calls since it is assumed local and always available.
type LocalClient interface {
	// StopPositionSync returns the current stop position of a local
	// recording.
	StopPositionSync(recordingID int64) (int64, error)

	// StartRecordingSync begins a fresh recording of channel/streamID and
	// returns the subscription id.
	StartRecordingSync(channel string, streamID int32) (subscriptionID int64, err error)

	// ExtendRecordingSync resumes recording into an existing recording and
	// returns the subscription id.
	ExtendRecordingSync(recordingID int64, channel string, streamID int32) (subscriptionID int64, err error)

	// TryStopRecordingSync stops an in-progress recording by subscription
	// id. It is best-effort: a failure here does not change agent state.
	TryStopRecordingSync(subscriptionID int64) error

	// PollSignal returns the next available recording signal, if any,
	// without blocking.
	PollSignal() (RecordingSignal, bool)

	// PollResponse returns the next available control response, used to
	// detect an error reported against the recording currently being
	// monitored.
	PollResponse() (ControlResponse, bool)

	// TrackRecordingPosition looks up the live position counter for a
	// replay/recording session, mirroring
	// RecordingPos.findCounterIdBySession + CountersReader.getCounterValue.
	// ok is false if the counter is not yet visible and should be
	// retried on a later duty cycle.
	TrackRecordingPosition(sessionID int32) (PositionCounter, bool)

	// Close releases the session.
	Close() error
}

// PositionCounter is a live view onto a recording's current position,
// sourced from the archive's counters reader. It can become unavailable out
// from under the caller, e.g. if the recording is stopped or the archive
// session drops, mirroring UnavailableCounterHandler.
type PositionCounter interface {
	RecordingID() int64
	Value() int64
	// OnUnavailable registers fn to be called exactly once, the first
	// time this counter is observed to have become unavailable.
	OnUnavailable(fn func())
}

// Connector opens a RemoteClient session against a cluster member's archive
// endpoint.
type Connector interface {
	Connect(ctx context.Context, archiveEndpoint string) (RemoteClient, error)
}
