package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeConnectorReusesSessionPerEndpoint(t *testing.T) {
	c := NewFakeConnector()

	a, err := c.Connect(context.Background(), "archive-1")
	require.NoError(t, err)

	b, err := c.Connect(context.Background(), "archive-1")
	require.NoError(t, err)

	assert.Same(t, a, b)

	other, err := c.Connect(context.Background(), "archive-2")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestFakeClientCorrelationIDsIncrementAcrossRequestKinds(t *testing.T) {
	c := newFakeClient(1)

	cid1, ok := c.RequestStopPosition(1)
	require.True(t, ok)

	cid2, ok := c.RequestReplay(ReplayParams{RecordingID: 1})
	require.True(t, ok)

	cid3, ok := c.RequestBoundedReplay(BoundedReplayParams{RecordingID: 1})
	require.True(t, ok)

	assert.Equal(t, cid1+1, cid2)
	assert.Equal(t, cid2+1, cid3)
}

func TestFakeClientRequestStopPositionUsesConfiguredPosition(t *testing.T) {
	c := newFakeClient(1)
	c.StopPositionFor[7] = 4096

	cid, ok := c.RequestStopPosition(7)
	require.True(t, ok)

	resp, ok := c.PollResponse()
	require.True(t, ok)
	assert.Equal(t, cid, resp.CorrelationID)
	assert.Equal(t, int64(4096), resp.RelevantID)
	assert.Equal(t, ResponseOK, resp.Code)

	_, ok = c.PollResponse()
	assert.False(t, ok, "responses are consumed once polled")
}

func TestFakeClientQueueErrorResponse(t *testing.T) {
	c := newFakeClient(1)
	c.QueueErrorResponse("boom")

	resp, ok := c.PollResponse()
	require.True(t, ok)
	assert.Equal(t, ResponseError, resp.Code)
	assert.Equal(t, "boom", resp.ErrorMessage)
}

func TestFakeClientTrackRecordingPositionRequiresVisibility(t *testing.T) {
	c := newFakeClient(1)

	_, ok := c.TrackRecordingPosition(1)
	assert.False(t, ok)

	c.MakeSessionVisible(1, 55)
	counter, ok := c.TrackRecordingPosition(1)
	require.True(t, ok)
	assert.Equal(t, int64(55), counter.RecordingID())
	assert.Equal(t, int64(0), counter.Value())

	c.SetRecordingPosition(1, 123)
	assert.Equal(t, int64(123), counter.Value())
}

func TestFakeClientSimulateUnavailableFiresCallbackSynchronously(t *testing.T) {
	c := newFakeClient(1)
	c.MakeSessionVisible(2, 99)

	counter, ok := c.TrackRecordingPosition(2)
	require.True(t, ok)

	fired := false
	counter.OnUnavailable(func() { fired = true })
	assert.False(t, fired)

	c.SimulateUnavailable(2)
	assert.True(t, fired, "SimulateUnavailable must invoke the callback immediately, not on a later poll")
}

func TestFakeClientOnUnavailableFiresImmediatelyIfAlreadyUnavailable(t *testing.T) {
	c := newFakeClient(1)
	c.MakeSessionVisible(3, 1)
	counter, _ := c.TrackRecordingPosition(3)

	c.SimulateUnavailable(3)

	fired := false
	counter.OnUnavailable(func() { fired = true })
	assert.True(t, fired, "registering after the fact must fire immediately")
}

func TestFakeClientStartAndExtendRecordingAllocateSubscriptionIDs(t *testing.T) {
	c := newFakeClient(1)

	sub1, err := c.StartRecordingSync("channel-a", 1)
	require.NoError(t, err)

	sub2, err := c.ExtendRecordingSync(10, "channel-a", 1)
	require.NoError(t, err)

	assert.NotEqual(t, sub1, sub2)
}

func TestFakeClientCloseMarksClosed(t *testing.T) {
	c := newFakeClient(1)
	assert.False(t, c.Closed())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
}
