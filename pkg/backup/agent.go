// Package backup implements the cluster backup agent's duty cycle: a
// single-threaded, cooperatively scheduled state machine that discovers a
// cluster's leader, retrieves any snapshots it is missing, continuously
// replicates the committed log into a local archive, and keeps a durable
// recording-log index consistent with what has actually been replicated.
//
// The Agent type and its state handlers are grounded directly on
// original_source/aeron-cluster's ClusterBackupAgent: the same seven-state
// dispatch, the same non-blocking request/correlation-id/poll pattern for
// the leader's archive, and the same synchronous convenience calls for the
// agent's own local archive. Shaped into Go idiom the way the teacher's
// pkg/reconciler/reconciler.go shapes its own single-loop, per-cycle
// dispatch: an explicit state enum switched on every call, one duty-cycle
// method the owner invokes repeatedly, errors returned rather than thrown.
package backup

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/clusterbackup/pkg/backup/archive"
	"github.com/cuemby/clusterbackup/pkg/backup/clock"
	"github.com/cuemby/clusterbackup/pkg/backup/consensus"
	"github.com/cuemby/clusterbackup/pkg/backup/counters"
	"github.com/cuemby/clusterbackup/pkg/backup/markfile"
	"github.com/cuemby/clusterbackup/pkg/backup/model"
	"github.com/cuemby/clusterbackup/pkg/backup/recordinglog"
	"github.com/cuemby/clusterbackup/pkg/backuperrors"
	"github.com/cuemby/clusterbackup/pkg/events"
	"github.com/cuemby/clusterbackup/pkg/log"
	"github.com/cuemby/clusterbackup/pkg/metrics"
)

// unboundedLength is offered as a replay's length when the caller wants the
// archive to keep streaming past whatever is currently recorded, mirroring
// Aeron's AeronArchive.NULL_LENGTH/unbounded-replay convention.
const unboundedLength int64 = math.MaxInt64

// nullID32 is the unset sentinel for int32 identifiers that are not counter
// ids (leader member id, live-log session id), kept distinct in name from
// model.NullCounterID even though the underlying value is the same -1.
const nullID32 int32 = -1

// AgentInvoker is the underlying messaging-client agent the duty cycle
// ticks once per distinct millisecond (spec step "invoke the underlying
// messaging-client agent once"), grounded on the original's
// AgentInvoker/aeronClientInvoker collaborator. Optional: nil means there is
// nothing else to drive.
type AgentInvoker interface {
	Invoke() (workCount int, err error)
}

// Deps collects the Agent's external collaborators. Only LocalArchive,
// ArchiveConnector and Transport are required; the rest default to inert or
// system implementations.
type Deps struct {
	Clock            clock.Clock
	LocalArchive     archive.LocalClient
	ArchiveConnector archive.Connector
	Transport        consensus.Transport
	Invoker          AgentInvoker
	Listener         *events.Listener
	CounterRegistry  *counters.Registry
}

// Agent is the cluster backup duty-cycle state machine.
type Agent struct {
	name       string
	instanceID string
	config     Config
	logger     zerolog.Logger

	clock            clock.Clock
	localArchive     archive.LocalClient
	archiveConnector archive.Connector
	transport        consensus.Transport
	invoker          AgentInvoker
	listener         *events.Listener

	counterRegistry *counters.Registry
	published       *counters.Published
	markFile        *markfile.File
	recordingLog    *recordinglog.Log

	subscription   consensus.Subscription
	publication    consensus.Publication
	endpointCursor *consensus.EndpointCursor
	currentEndpoint string

	state                   State
	timeOfLastTickMs        int64
	timeOfLastBackupQueryMs int64
	timeOfLastProgressMs    int64
	nextQueryDeadlineMs     int64
	coolDownDeadlineMs      int64
	correlationSeq          int64

	queryCorrelationID int64

	members                       []model.Member
	leaderMember                  *model.Member
	leaderMemberID                int32
	leaderLogRecordingID          int64
	leaderCommitPositionCounterID int32
	leaderArchive                 archive.RemoteClient
	leaderLogEntry                *model.Entry
	leaderLastTermEntry           *model.Entry

	snapshotsToRetrieve   []model.Snapshot
	snapshotLengthByIndex []int64
	snapshotCursor        int
	archiveCorrelationID  int64

	snapshotsRetrieved         []model.Snapshot
	replayCorrelationID        int64
	currentLocalSubscriptionID int64
	currentMonitor             *snapshotRetrieveMonitor

	boundedReplayCorrelationID  int64
	resumingRecordingID         int64
	liveLogStartPosition        int64
	liveLogRecordingID          int64
	liveLogSubscriptionID       int64
	liveLogSessionID            int32
	liveLogPositionCounter      archive.PositionCounter
	lastObservedLiveLogPosition int64
}

// New constructs an Agent in state INIT. name is a diagnostic label used in
// logs, not a protocol identifier.
func New(name string, config Config, deps Deps) (*Agent, error) {
	if len(config.ClusterConsensusEndpoints) == 0 {
		return nil, fmt.Errorf("backup: at least one consensus endpoint is required")
	}
	if deps.LocalArchive == nil {
		return nil, fmt.Errorf("backup: LocalArchive is required")
	}
	if deps.ArchiveConnector == nil {
		return nil, fmt.Errorf("backup: ArchiveConnector is required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("backup: Transport is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}

	registry := deps.CounterRegistry
	if registry == nil {
		registry = counters.NewRegistry()
	}

	mf, err := markfile.Open(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("backup: open mark file: %w", err)
	}

	sub, err := deps.Transport.NewSubscription(config.ResponseChannel, config.ResponseStreamID)
	if err != nil {
		return nil, fmt.Errorf("backup: open consensus subscription: %w", err)
	}

	nowMs := deps.Clock.TimeMillis()
	instanceID := uuid.New().String()

	a := &Agent{
		name:             name,
		instanceID:       instanceID,
		config:           config,
		logger:           log.WithComponent("backup-agent").With().Str("agent", name).Str("instance_id", instanceID).Logger(),
		clock:            deps.Clock,
		localArchive:     deps.LocalArchive,
		archiveConnector: deps.ArchiveConnector,
		transport:        deps.Transport,
		invoker:          deps.Invoker,
		listener:         deps.Listener,
		counterRegistry:  registry,
		published:        counters.NewPublished(registry),
		markFile:         mf,
		subscription:     sub,
		endpointCursor:   consensus.NewEndpointCursor(config.ClusterConsensusEndpoints),

		state:                   StateInit,
		timeOfLastBackupQueryMs: model.NullValue,
		timeOfLastProgressMs:    nowMs,
		coolDownDeadlineMs:      model.NullValue,

		queryCorrelationID: model.NullValue,

		leaderMemberID:                nullID32,
		leaderLogRecordingID:          model.NullValue,
		leaderCommitPositionCounterID: model.NullCounterID,

		archiveCorrelationID: model.NullValue,

		replayCorrelationID:        model.NullValue,
		currentLocalSubscriptionID: model.NullValue,

		boundedReplayCorrelationID: model.NullValue,
		resumingRecordingID:        model.NullValue,
		liveLogStartPosition:       model.NullPosition,
		liveLogRecordingID:         model.NullValue,
		liveLogSubscriptionID:      model.NullValue,
		liveLogSessionID:           nullID32,
	}

	metrics.SetState(allStates, a.state.String())

	return a, nil
}

// Name returns the agent's diagnostic label.
func (a *Agent) Name() string { return a.name }

// InstanceID returns the process-unique id generated for this agent at
// construction, used to disambiguate log lines across concurrently running
// instances of the same named agent.
func (a *Agent) InstanceID() string { return a.instanceID }

// State returns the agent's current FSM state.
func (a *Agent) State() State { return a.state }

// Close releases every resource the agent owns, in the order the original's
// onClose tears down: consensus transport, archive clients, recording log,
// mark file. If a live-log recording is in progress it is stopped just before
// the local archive is closed, as the original's onClose does with
// backupArchive.tryStopRecording before closing the archive.
func (a *Agent) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.subscription != nil {
		record(a.subscription.Close())
	}
	if a.publication != nil {
		record(a.publication.Close())
	}
	if a.leaderArchive != nil {
		record(a.leaderArchive.Close())
	}
	if a.localArchive != nil {
		if a.liveLogSubscriptionID != model.NullValue {
			record(a.localArchive.TryStopRecordingSync(a.liveLogSubscriptionID))
		}
		record(a.localArchive.Close())
	}
	if a.recordingLog != nil {
		record(a.recordingLog.Close())
	}
	if a.markFile != nil {
		record(a.markFile.Close())
	}

	return firstErr
}

// DoWork runs one duty cycle. It never blocks and returns the number of
// discrete units of work performed, so a caller can back off when the agent
// is idle.
func (a *Agent) DoWork() (int, error) {
	nowMs := a.clock.TimeMillis()
	workCount := 0

	if a.state == StateInit {
		n, err := a.init(nowMs)
		workCount += n
		if err != nil {
			return a.fail(err, nowMs)
		}
	}

	if nowMs != a.timeOfLastTickMs {
		a.timeOfLastTickMs = nowMs

		if a.invoker != nil {
			n, err := a.invoker.Invoke()
			workCount += n
			if err != nil {
				return a.fail(err, nowMs)
			}
		}

		if a.markFile != nil {
			if err := a.markFile.UpdateActivityTimestamp(nowMs); err != nil {
				a.logger.Warn().Err(err).Msg("failed to update mark file activity timestamp")
			}
		}
	}

	n, err := a.pollConsensus(nowMs)
	workCount += n
	if err != nil {
		return a.fail(err, nowMs)
	}

	n, err = a.dispatch(nowMs)
	workCount += n
	if err != nil {
		return a.fail(err, nowMs)
	}

	if a.hasProgressStalled(nowMs) {
		events.NotifyPossibleFailure(a.listener, backuperrors.Stall())
		a.transitionState(StateResetBackup, nowMs)
	}

	return workCount, nil
}

func (a *Agent) fail(err error, nowMs int64) (int, error) {
	kind := "unknown"
	if be, ok := err.(*backuperrors.Error); ok {
		kind = be.Kind.String()
	}
	metrics.ArchiveErrorsTotal.WithLabelValues(kind).Inc()
	a.logger.Warn().Err(err).Str("state", a.state.String()).Msg("backup agent raised an error, resetting")

	events.NotifyPossibleFailure(a.listener, err)
	a.transitionState(StateResetBackup, nowMs)
	return 0, err
}

func (a *Agent) dispatch(nowMs int64) (int, error) {
	switch a.state {
	case StateBackupQuery:
		return a.backupQuery(nowMs)
	case StateSnapshotLengthRetrieve:
		return a.snapshotLengthRetrieve(nowMs)
	case StateSnapshotRetrieve:
		return a.snapshotRetrieve(nowMs)
	case StateLiveLogReplay:
		return a.liveLogReplay(nowMs)
	case StateUpdateRecordingLog:
		return a.updateRecordingLog(nowMs)
	case StateBackingUp:
		return a.backingUp(nowMs)
	case StateResetBackup:
		return a.resetBackup(nowMs)
	default:
		return 0, nil
	}
}

func (a *Agent) transitionState(newState State, nowMs int64) {
	a.state = newState
	a.published.State.Set(int64(newState))
	metrics.SetState(allStates, newState.String())
	a.logger.Debug().Str("state", newState.String()).Int64("now_ms", nowMs).Msg("state transition")
}

func (a *Agent) nextCorrelationID() int64 {
	a.correlationSeq++
	return a.correlationSeq
}

// hasProgressStalled implements spec §4.11: once a live-log recording is
// established this predicate can never fire again; steady-state
// interruptions are caught instead by the counter-unavailable callback.
func (a *Agent) hasProgressStalled(nowMs int64) bool {
	return a.liveLogSessionID == nullID32 && nowMs > a.timeOfLastProgressMs+a.config.BackupProgressTimeoutMs
}

// init opens the recording log (idempotent across INIT re-entries) and
// moves straight to BACKUP_QUERY.
func (a *Agent) init(nowMs int64) (int, error) {
	if a.recordingLog == nil {
		recLog, err := recordinglog.Open(a.config.DataDir)
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "open recording log", err)
		}
		a.recordingLog = recLog
	}

	if entries, err := a.recordingLog.Entries(); err == nil {
		metrics.RecordingLogEntriesTotal.Set(float64(len(entries)))
	}

	a.timeOfLastProgressMs = nowMs
	a.transitionState(StateBackupQuery, nowMs)
	return 1, nil
}

// pollConsensus drains the consensus subscription with a bounded fragment
// limit, dispatching accepted BackupResponse frames.
func (a *Agent) pollConsensus(nowMs int64) (int, error) {
	if a.subscription == nil {
		return 0, nil
	}

	const fragmentLimit = 10
	workCount := 0

	for i := 0; i < fragmentLimit; i++ {
		frame, ok := a.subscription.Poll()
		if !ok {
			break
		}
		workCount++
		if err := a.onFragment(frame, nowMs); err != nil {
			return workCount, err
		}
	}

	return workCount, nil
}

func (a *Agent) onFragment(frame []byte, nowMs int64) error {
	schemaID, templateID, err := consensus.PeekHeader(frame)
	if err != nil {
		return backuperrors.Wrap(backuperrors.KindProtocolMismatch, "decode consensus frame header", err)
	}
	if schemaID != consensus.SchemaID {
		return backuperrors.ProtocolMismatch(consensus.SchemaID, schemaID)
	}
	if templateID != consensus.TemplateBackupResponse {
		return nil
	}

	resp, err := consensus.DecodeBackupResponse(frame)
	if err != nil {
		return backuperrors.Wrap(backuperrors.KindProtocolMismatch, "decode backup response", err)
	}

	return a.onBackupResponse(resp, nowMs)
}

// onBackupResponse is grounded on the original's onBackupResponse: it
// decides what is new relative to the local recording log, detects leader
// change (migrating the leader-archive connection unconditionally on any
// leaderMemberId change per the spec's resolved Open Question, not only
// when clusterArchive was nil), and routes to snapshot retrieval or
// straight to live-log replay.
func (a *Agent) onBackupResponse(resp model.BackupResponse, nowMs int64) error {
	if a.state != StateBackupQuery || a.queryCorrelationID == model.NullValue || resp.CorrelationID != a.queryCorrelationID {
		return nil
	}

	var toRetrieve []model.Snapshot
	for _, snap := range resp.Snapshots {
		existing, found, err := a.recordingLog.LatestSnapshot(snap.ServiceID)
		if err != nil {
			return backuperrors.Wrap(backuperrors.KindArchiveError, "query latest snapshot", err)
		}
		if !found || existing.LogPosition != snap.LogPosition {
			toRetrieve = append(toRetrieve, snap)
		}
	}

	leaderChanged := a.leaderMember == nil ||
		a.leaderMember.ID != resp.LeaderMemberID ||
		a.leaderLogRecordingID != resp.LogRecordingID

	if a.leaderMember == nil || leaderChanged {
		a.leaderLogEntry = &model.Entry{
			LeadershipTermID:    resp.LogLeadershipTermID,
			TermBaseLogPosition: resp.LogTermBaseLogPosition,
			LogPosition:         model.NullPosition,
			TimestampMs:         nowMs,
			ServiceID:           model.ConsensusModuleServiceID,
			Type:                model.EntryTypeTerm,
		}
	}

	lastTerm, lastFound, err := a.recordingLog.FindLastTerm()
	if err != nil {
		return backuperrors.Wrap(backuperrors.KindArchiveError, "find last term", err)
	}
	if !lastFound || lastTerm.LeadershipTermID != resp.LastLeadershipTermID || lastTerm.TermBaseLogPosition != resp.LastTermBaseLogPosition {
		a.leaderLastTermEntry = &model.Entry{
			LeadershipTermID:    resp.LastLeadershipTermID,
			TermBaseLogPosition: resp.LastTermBaseLogPosition,
			LogPosition:         model.NullPosition,
			TimestampMs:         nowMs,
			ServiceID:           model.ConsensusModuleServiceID,
			Type:                model.EntryTypeTerm,
		}
	}

	a.members = model.ParseMembers(resp.ClusterMembers)
	a.leaderMember = model.FindMember(a.members, resp.LeaderMemberID)
	a.leaderMemberID = resp.LeaderMemberID
	a.leaderLogRecordingID = resp.LogRecordingID
	a.leaderCommitPositionCounterID = resp.CommitPositionCounterID

	a.timeOfLastBackupQueryMs = model.NullValue
	a.snapshotCursor = 0
	a.queryCorrelationID = model.NullValue
	a.snapshotsToRetrieve = toRetrieve
	a.snapshotLengthByIndex = make([]int64, len(toRetrieve))

	if leaderChanged {
		a.teardownLeaderArchive()
	}

	events.NotifyBackupResponse(a.listener, resp)
	metrics.BackupResponsesTotal.Inc()

	if len(toRetrieve) == 0 {
		a.transitionState(StateLiveLogReplay, nowMs)
	} else {
		a.transitionState(StateSnapshotLengthRetrieve, nowMs)
	}

	return nil
}

func (a *Agent) teardownLeaderArchive() {
	if a.leaderArchive != nil {
		_ = a.leaderArchive.Close()
		a.leaderArchive = nil
	}
}

// ensureLeaderArchive issues (or re-issues) a connect attempt against the
// current leader's archive endpoint, returning true once connected. Every
// call that does not yet have a connection is itself a non-blocking retry,
// standing in for "poll the async connect" against a real implementation
// whose Connect only blocks for the duration of a single attempt.
func (a *Agent) ensureLeaderArchive(nowMs int64) bool {
	_ = nowMs
	if a.leaderArchive != nil {
		return true
	}
	if a.leaderMember == nil {
		return false
	}

	client, err := a.archiveConnector.Connect(context.Background(), a.leaderMember.ArchiveEndpoint)
	if err != nil {
		a.logger.Debug().Err(err).Str("endpoint", a.leaderMember.ArchiveEndpoint).Msg("leader archive not yet connected")
		return false
	}
	a.leaderArchive = client
	return true
}

// backupQuery implements spec §4.4's issuance half: rotate the endpoint
// cursor on silence, otherwise send a fresh query once connected with no
// request outstanding.
func (a *Agent) backupQuery(nowMs int64) (int, error) {
	timedOut := a.timeOfLastBackupQueryMs != model.NullValue && nowMs > a.timeOfLastBackupQueryMs+a.config.BackupResponseTimeoutMs
	if a.publication == nil || timedOut {
		return a.rotateEndpoint(nowMs)
	}

	if a.queryCorrelationID == model.NullValue && a.publication.Connected() {
		cid := a.nextCorrelationID()
		query := model.BackupQuery{
			CorrelationID:           cid,
			ResponseStreamID:        a.config.ResponseStreamID,
			ProtocolSemanticVersion: consensus.ProtocolVersion,
			ResponseChannel:         a.config.ResponseChannel,
		}

		if a.publication.TryOffer(consensus.EncodeBackupQuery(query)) {
			a.queryCorrelationID = cid
			a.timeOfLastBackupQueryMs = nowMs
			events.NotifyBackupQuery(a.listener, a.currentEndpoint, cid)
			metrics.BackupQueriesTotal.Inc()
			return 1, nil
		}
	}

	return 0, nil
}

func (a *Agent) rotateEndpoint(nowMs int64) (int, error) {
	a.teardownLeaderArchive()

	if a.publication != nil {
		_ = a.publication.Close()
		a.publication = nil
	}

	endpoint := a.endpointCursor.Next()
	pub, err := a.transport.NewPublication(endpoint)
	if err != nil {
		return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "open consensus publication", err)
	}

	a.currentEndpoint = endpoint
	a.publication = pub
	a.queryCorrelationID = model.NullValue
	a.timeOfLastBackupQueryMs = nowMs

	a.logger.Info().Str("endpoint", endpoint).Msg("rotated consensus endpoint")
	return 1, nil
}

// snapshotLengthRetrieve implements spec §4.5, measuring every pending
// snapshot's stop position on the leader before transferring any of them.
func (a *Agent) snapshotLengthRetrieve(nowMs int64) (int, error) {
	if !a.ensureLeaderArchive(nowMs) {
		return 0, nil
	}

	if a.snapshotCursor >= len(a.snapshotsToRetrieve) {
		a.snapshotCursor = 0
		a.transitionState(StateSnapshotRetrieve, nowMs)
		return 1, nil
	}

	if a.archiveCorrelationID == model.NullValue {
		snap := a.snapshotsToRetrieve[a.snapshotCursor]
		cid, ok := a.leaderArchive.RequestStopPosition(snap.RecordingID)
		if !ok {
			return 0, nil
		}
		a.archiveCorrelationID = cid
		return 1, nil
	}

	resp, ok := a.leaderArchive.PollResponse()
	if !ok {
		return 0, nil
	}
	if resp.CorrelationID != a.archiveCorrelationID {
		return 1, nil
	}
	if resp.Code == archive.ResponseError {
		return 0, backuperrors.ArchiveError(resp.CorrelationID, resp.ErrorMessage)
	}
	if resp.RelevantID == model.NullPosition {
		a.transitionState(StateResetBackup, nowMs)
		return 1, nil
	}

	a.snapshotLengthByIndex[a.snapshotCursor] = resp.RelevantID
	a.archiveCorrelationID = model.NullValue
	a.snapshotCursor++
	a.timeOfLastProgressMs = nowMs

	if a.snapshotCursor >= len(a.snapshotsToRetrieve) {
		a.snapshotCursor = 0
		a.transitionState(StateSnapshotRetrieve, nowMs)
	}

	return 1, nil
}

// snapshotRetrieve implements spec §4.6: replay each pending snapshot from
// the leader into a fresh local recording, watched by a
// snapshotRetrieveMonitor for the expected START@0/STOP@expectedStopPosition
// signal pair.
func (a *Agent) snapshotRetrieve(nowMs int64) (int, error) {
	if !a.ensureLeaderArchive(nowMs) {
		return 0, nil
	}

	if a.snapshotCursor >= len(a.snapshotsToRetrieve) {
		a.snapshotCursor = 0
		a.transitionState(StateLiveLogReplay, nowMs)
		return 1, nil
	}

	snap := a.snapshotsToRetrieve[a.snapshotCursor]

	if a.currentMonitor == nil {
		if a.replayCorrelationID == model.NullValue {
			cid, ok := a.leaderArchive.RequestReplay(archive.ReplayParams{
				RecordingID:    snap.RecordingID,
				Position:       0,
				Length:         unboundedLength,
				ReplayChannel:  baseChannel(a.config.CatchupEndpoint),
				ReplayStreamID: a.config.ReplayStreamID,
			})
			if !ok {
				return 0, nil
			}
			a.replayCorrelationID = cid
			return 1, nil
		}

		resp, ok := a.leaderArchive.PollResponse()
		if !ok {
			return 0, nil
		}
		if resp.CorrelationID != a.replayCorrelationID {
			return 1, nil
		}
		if resp.Code == archive.ResponseError {
			return 0, backuperrors.ArchiveError(resp.CorrelationID, resp.ErrorMessage)
		}

		channel := sessionChannel(a.config.CatchupEndpoint, resp.RelevantID)
		subID, err := a.localArchive.StartRecordingSync(channel, a.config.ReplayStreamID)
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "start local snapshot recording", err)
		}

		a.currentLocalSubscriptionID = subID
		a.replayCorrelationID = model.NullValue
		a.currentMonitor = newSnapshotRetrieveMonitor(&localArchiveHandle{client: a.localArchive}, a.snapshotLengthByIndex[a.snapshotCursor])
		return 1, nil
	}

	n, err := a.currentMonitor.poll()
	if err != nil {
		return n, backuperrors.UnexpectedRecordingSignal(err.Error())
	}
	if !a.currentMonitor.isDone() {
		return n, nil
	}

	retrieved := snap
	retrieved.RecordingID = a.currentMonitor.recordingID
	retrieved.TimestampMs = nowMs
	a.snapshotsRetrieved = append(a.snapshotsRetrieved, retrieved)
	metrics.SnapshotsRetrievedTotal.Inc()

	a.currentMonitor = nil
	a.currentLocalSubscriptionID = model.NullValue
	a.timeOfLastProgressMs = nowMs
	a.snapshotCursor++

	if a.snapshotCursor >= len(a.snapshotsToRetrieve) {
		a.snapshotCursor = 0
		a.transitionState(StateLiveLogReplay, nowMs)
	}

	return n + 1, nil
}

// liveLogReplay implements spec §4.7: request a bounded replay of the
// leader's committed log, then start or extend a local recording of it,
// resuming from the local archive's own stop position when a prior term
// already exists.
func (a *Agent) liveLogReplay(nowMs int64) (int, error) {
	if !a.ensureLeaderArchive(nowMs) {
		return 0, nil
	}

	if a.liveLogSessionID == nullID32 && a.boundedReplayCorrelationID == model.NullValue {
		startPosition := model.NullPosition
		lastTerm, found, err := a.recordingLog.FindLastTerm()
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "find last term", err)
		}
		if found {
			pos, err := a.localArchive.StopPositionSync(lastTerm.RecordingID)
			if err != nil {
				return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "local stop position", err)
			}
			startPosition = pos
			a.resumingRecordingID = lastTerm.RecordingID
		}
		a.liveLogStartPosition = startPosition
		a.logger.Debug().Int64("start_position", startPosition).Msg("requesting bounded live-log replay")

		cid, ok := a.leaderArchive.RequestBoundedReplay(archive.BoundedReplayParams{
			RecordingID:    a.leaderLogRecordingID,
			Position:       startPosition,
			Length:         unboundedLength,
			LimitCounterID: a.leaderCommitPositionCounterID,
			ReplayChannel:  baseChannel(a.config.CatchupEndpoint),
			ReplayStreamID: a.config.LogStreamID,
		})
		if !ok {
			return 0, nil
		}
		a.boundedReplayCorrelationID = cid
		return 1, nil
	}

	if a.boundedReplayCorrelationID != model.NullValue {
		resp, ok := a.leaderArchive.PollResponse()
		if !ok {
			return 0, nil
		}
		if resp.CorrelationID != a.boundedReplayCorrelationID {
			return 1, nil
		}
		if resp.Code == archive.ResponseError {
			return 0, backuperrors.ArchiveError(resp.CorrelationID, resp.ErrorMessage)
		}

		channel := sessionChannel(a.config.CatchupEndpoint, resp.RelevantID)

		var subID int64
		var err error
		if a.resumingRecordingID != model.NullValue {
			subID, err = a.localArchive.ExtendRecordingSync(a.resumingRecordingID, channel, a.config.LogStreamID)
		} else {
			subID, err = a.localArchive.StartRecordingSync(channel, a.config.LogStreamID)
		}
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "start/extend local live-log recording", err)
		}

		a.liveLogSubscriptionID = subID
		a.liveLogSessionID = int32(resp.RelevantID)
		a.boundedReplayCorrelationID = model.NullValue
		return 1, nil
	}

	counter, ok := a.localArchive.TrackRecordingPosition(a.liveLogSessionID)
	if !ok {
		return 0, nil
	}

	a.liveLogRecordingID = counter.RecordingID()
	a.liveLogPositionCounter = counter
	a.lastObservedLiveLogPosition = counter.Value()
	a.published.LiveLogPosition.Set(a.lastObservedLiveLogPosition)
	metrics.LiveLogPosition.Set(float64(a.lastObservedLiveLogPosition))
	counter.OnUnavailable(a.onLiveLogCounterUnavailable)

	a.timeOfLastProgressMs = nowMs
	a.transitionState(StateUpdateRecordingLog, nowMs)
	return 1, nil
}

// onLiveLogCounterUnavailable is the registry's UnavailableCounterHandler
// callback for the live-log recording-position counter, the mechanism spec
// §4.11 names for catching steady-state interruptions once the stall
// predicate itself can no longer fire.
func (a *Agent) onLiveLogCounterUnavailable() {
	a.liveLogSessionID = nullID32
	a.liveLogRecordingID = model.NullValue
	a.liveLogPositionCounter = nil

	a.logger.Warn().Msg("live-log recording counter became unavailable")
	events.NotifyPossibleFailure(a.listener, backuperrors.ResourceUnavailable("live log recording counter unavailable"))
	a.transitionState(StateResetBackup, a.clock.TimeMillis())
}

// updateRecordingLog implements spec §4.8's exact append ordering: the new
// leader term first (only once it is covered by every retrieved snapshot),
// then retrieved snapshots in reverse order, then the prior-term entry.
func (a *Agent) updateRecordingLog(nowMs int64) (int, error) {
	if a.leaderLogEntry != nil {
		qualifies, err := a.recordingLog.IsUnknown(a.leaderLogEntry.LeadershipTermID, a.leaderLogEntry.TermBaseLogPosition)
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "check recording log", err)
		}
		if qualifies && len(a.snapshotsRetrieved) > 0 {
			minTerm := a.snapshotsRetrieved[0].LeadershipTermID
			for _, s := range a.snapshotsRetrieved[1:] {
				if s.LeadershipTermID < minTerm {
					minTerm = s.LeadershipTermID
				}
			}
			qualifies = a.leaderLogEntry.LeadershipTermID <= minTerm
		}
		if qualifies {
			if err := a.appendTermEntry(*a.leaderLogEntry, nowMs); err != nil {
				return 0, err
			}
		}
	}

	for i := len(a.snapshotsRetrieved) - 1; i >= 0; i-- {
		snap := a.snapshotsRetrieved[i]
		entry, err := a.recordingLog.AppendSnapshot(snap.RecordingID, snap, nowMs)
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "append snapshot", err)
		}
		events.NotifyUpdatedRecordingLog(a.listener, entry)
	}

	if a.leaderLastTermEntry != nil {
		unknown, err := a.recordingLog.IsUnknown(a.leaderLastTermEntry.LeadershipTermID, a.leaderLastTermEntry.TermBaseLogPosition)
		if err != nil {
			return 0, backuperrors.Wrap(backuperrors.KindArchiveError, "check recording log", err)
		}
		if unknown {
			if err := a.appendTermEntry(*a.leaderLastTermEntry, nowMs); err != nil {
				return 0, err
			}
		}
	}

	a.leaderLogEntry = nil
	a.leaderLastTermEntry = nil
	a.snapshotsRetrieved = nil
	a.snapshotsToRetrieve = nil
	a.snapshotLengthByIndex = nil
	a.resumingRecordingID = model.NullValue

	a.nextQueryDeadlineMs = nowMs + a.config.BackupQueryIntervalMs
	a.published.NextQueryDeadline.Set(a.nextQueryDeadlineMs)
	metrics.NextQueryDeadlineMs.Set(float64(a.nextQueryDeadlineMs))

	if entries, err := a.recordingLog.Entries(); err == nil {
		metrics.RecordingLogEntriesTotal.Set(float64(len(entries)))
	}

	a.transitionState(StateBackingUp, nowMs)
	return 1, nil
}

func (a *Agent) appendTermEntry(term model.Entry, nowMs int64) error {
	entry, err := a.recordingLog.AppendTerm(term.LeadershipTermID, term.TermBaseLogPosition, nowMs)
	if err != nil {
		return backuperrors.Wrap(backuperrors.KindArchiveError, "append term", err)
	}
	if err := a.recordingLog.CommitRecordingID(entry.EntryIndex, a.liveLogRecordingID); err != nil {
		return backuperrors.Wrap(backuperrors.KindArchiveError, "commit recording id", err)
	}
	entry.RecordingID = a.liveLogRecordingID
	events.NotifyUpdatedRecordingLog(a.listener, entry)
	return nil
}

// backingUp implements spec §4.9's steady state: re-query on the scheduled
// deadline, otherwise sample the live-log position and publish any advance.
func (a *Agent) backingUp(nowMs int64) (int, error) {
	if nowMs >= a.nextQueryDeadlineMs {
		a.transitionState(StateBackupQuery, nowMs)
		return 1, nil
	}

	if a.liveLogPositionCounter == nil {
		return 0, nil
	}

	pos := a.liveLogPositionCounter.Value()
	if pos <= a.lastObservedLiveLogPosition {
		return 0, nil
	}

	a.lastObservedLiveLogPosition = pos
	a.published.LiveLogPosition.Set(pos)
	metrics.LiveLogPosition.Set(float64(pos))
	events.NotifyLiveLogProgress(a.listener, pos)
	return 1, nil
}

// resetBackup implements spec §4.10: tear everything down once, wait out
// the cool-down interval, then restart from INIT.
func (a *Agent) resetBackup(nowMs int64) (int, error) {
	if a.coolDownDeadlineMs == model.NullValue {
		a.coolDownDeadlineMs = nowMs + a.config.CoolDownIntervalMs
		a.reset(nowMs)
		metrics.ResetBackupTotal.Inc()
		return 1, nil
	}

	if nowMs >= a.coolDownDeadlineMs {
		a.coolDownDeadlineMs = model.NullValue
		a.transitionState(StateInit, nowMs)
		return 1, nil
	}

	return 0, nil
}

// reset clears every piece of per-cycle state and closes owned resources,
// nulling each field before closing it so a re-entrant call during partial
// teardown is a no-op (spec §3 "Ownership").
func (a *Agent) reset(nowMs int64) {
	a.members = nil
	a.leaderMember = nil
	a.leaderMemberID = nullID32
	a.leaderLogRecordingID = model.NullValue
	a.leaderCommitPositionCounterID = model.NullCounterID
	a.leaderLogEntry = nil
	a.leaderLastTermEntry = nil

	a.snapshotsToRetrieve = nil
	a.snapshotsRetrieved = nil
	a.snapshotLengthByIndex = nil
	a.snapshotCursor = 0
	a.currentMonitor = nil
	a.currentLocalSubscriptionID = model.NullValue

	a.queryCorrelationID = model.NullValue
	a.archiveCorrelationID = model.NullValue
	a.replayCorrelationID = model.NullValue
	a.boundedReplayCorrelationID = model.NullValue

	a.liveLogRecordingID = model.NullValue
	a.liveLogSubscriptionID = model.NullValue
	a.liveLogSessionID = nullID32
	a.liveLogPositionCounter = nil
	a.lastObservedLiveLogPosition = 0
	a.resumingRecordingID = model.NullValue
	a.liveLogStartPosition = model.NullPosition

	a.timeOfLastBackupQueryMs = model.NullValue
	a.timeOfLastProgressMs = nowMs

	recordingLog := a.recordingLog
	a.recordingLog = nil
	if recordingLog != nil {
		_ = recordingLog.Close()
	}

	publication := a.publication
	a.publication = nil
	if publication != nil {
		_ = publication.Close()
	}

	leaderArchive := a.leaderArchive
	a.leaderArchive = nil
	if leaderArchive != nil {
		_ = leaderArchive.Close()
	}

	a.endpointCursor.Reset()
}

// baseChannel is the replay/catch-up channel before a replay session id is
// known (spec §6).
func baseChannel(catchupEndpoint string) string {
	return fmt.Sprintf("endpoint=%s", catchupEndpoint)
}

// sessionChannel pins a replay/catch-up channel to a specific session once
// its id is known (spec §6).
func sessionChannel(catchupEndpoint string, sessionID int64) string {
	return fmt.Sprintf("endpoint=%s|session-id=%d", catchupEndpoint, sessionID)
}
