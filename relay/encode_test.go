package relay

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Outbound frames are checked by parsing them back: whatever a conforming
// client's decoder recovers must equal what the relay meant to say.

func reparse(t *testing.T, env nostr.Envelope) nostr.Envelope {
	t.Helper()
	data, err := EncodeRelayMessage(env)
	require.NoError(t, err)
	parsed := nostr.ParseMessage(string(data))
	require.NotNil(t, parsed, "frame did not parse back: %s", data)
	return parsed
}

func TestEncodeOKRoundTrip(t *testing.T) {
	evt := signEvent(t, nostr.GeneratePrivateKey(), nostr.KindTextNote, "hi", nostr.Tags{})

	parsed := reparse(t, okMessage(evt.ID, false, "duplicate event"))

	ok, isOK := parsed.(*nostr.OKEnvelope)
	require.True(t, isOK)
	assert.Equal(t, evt.ID, ok.EventID)
	assert.False(t, ok.OK)
	assert.Equal(t, "duplicate event", ok.Reason)
}

func TestEncodeNoticeRoundTrip(t *testing.T) {
	parsed := reparse(t, noticeMessage(`rate-limited: slow "down"`))

	notice, isNotice := parsed.(*nostr.NoticeEnvelope)
	require.True(t, isNotice)
	assert.Equal(t, `rate-limited: slow "down"`, string(*notice))
}

func TestEncodeEventRoundTrip(t *testing.T) {
	evt := signEvent(t, nostr.GeneratePrivateKey(), nostr.KindTextNote,
		"payload with unicode é and newline\n", nostr.Tags{{"t", "topic"}})

	parsed := reparse(t, eventMessage("sub-1", evt))

	env, isEvent := parsed.(*nostr.EventEnvelope)
	require.True(t, isEvent)
	require.NotNil(t, env.SubscriptionID)
	assert.Equal(t, "sub-1", *env.SubscriptionID)
	assert.Equal(t, evt.ID, env.Event.ID)
	assert.Equal(t, evt.Sig, env.Event.Sig)
	assert.Equal(t, evt.Content, env.Event.Content)
	assert.Equal(t, evt.Tags, env.Event.Tags)
}

func TestEncodeEOSERoundTrip(t *testing.T) {
	parsed := reparse(t, eoseMessage("sub-2"))

	eose, isEOSE := parsed.(*nostr.EOSEEnvelope)
	require.True(t, isEOSE)
	assert.Equal(t, "sub-2", string(*eose))
}

func TestEncodeClosedRoundTrip(t *testing.T) {
	parsed := reparse(t, closedMessage("sub-3", ""))

	closed, isClosed := parsed.(*nostr.ClosedEnvelope)
	require.True(t, isClosed)
	assert.Equal(t, "sub-3", closed.SubscriptionID)
	assert.Empty(t, closed.Reason)
}
