package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTransportDeliverResponseReachesSubscription(t *testing.T) {
	tr := NewFakeTransport()

	sub, err := tr.NewSubscription("response-channel", 2)
	require.NoError(t, err)

	_, ok := sub.Poll()
	assert.False(t, ok)

	tr.DeliverResponse("response-channel", []byte{1, 2, 3})

	frame, ok := sub.Poll()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, frame)

	_, ok = sub.Poll()
	assert.False(t, ok)
}

func TestFakeTransportNewSubscriptionReusesInboxPerChannel(t *testing.T) {
	tr := NewFakeTransport()

	subA, err := tr.NewSubscription("response-channel", 2)
	require.NoError(t, err)

	tr.DeliverResponse("response-channel", []byte{9})

	subB, err := tr.NewSubscription("response-channel", 2)
	require.NoError(t, err)

	frame, ok := subB.Poll()
	require.True(t, ok, "a second subscription on the same channel shares the same inbox")
	assert.Equal(t, []byte{9}, frame)

	_, ok = subA.Poll()
	assert.False(t, ok)
}

func TestFakePublicationRecordsSentFrames(t *testing.T) {
	tr := NewFakeTransport()

	pub, err := tr.NewPublication("node0")
	require.NoError(t, err)
	assert.True(t, pub.Connected())

	assert.True(t, pub.TryOffer([]byte{1}))
	assert.True(t, pub.TryOffer([]byte{2}))

	sent := tr.Sent("node0")
	require.Len(t, sent, 2)
	assert.Equal(t, []byte{1}, sent[0])
	assert.Equal(t, []byte{2}, sent[1])

	assert.Empty(t, tr.Sent("node1"))
}
