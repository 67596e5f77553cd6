package relay

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// The wire format is positionally typed JSON arrays, so outbound messages
// are built as go-nostr envelope values and serialized through their
// MarshalJSON, which preserves field order exactly.

func okMessage(eventID string, accepted bool, reason string) nostr.Envelope {
	return &nostr.OKEnvelope{EventID: eventID, OK: accepted, Reason: reason}
}

func noticeMessage(msg string) nostr.Envelope {
	n := nostr.NoticeEnvelope(msg)
	return &n
}

func eventMessage(subID string, evt *nostr.Event) nostr.Envelope {
	return &nostr.EventEnvelope{SubscriptionID: &subID, Event: *evt}
}

func eoseMessage(subID string) nostr.Envelope {
	e := nostr.EOSEEnvelope(subID)
	return &e
}

func closedMessage(subID string, reason string) nostr.Envelope {
	return &nostr.ClosedEnvelope{SubscriptionID: subID, Reason: reason}
}

// EncodeRelayMessage serializes an outbound envelope into one text frame.
func EncodeRelayMessage(env nostr.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", env.Label(), err)
	}
	return data, nil
}
