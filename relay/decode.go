// Package relay implements the bolt message-handling core: decoding client
// frames, validating and admitting events, resolving deletion requests,
// answering one-shot subscriptions and encoding relay responses.
package relay

import (
	"bytes"
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

var (
	errEmptyFrame   = errors.New("empty message")
	errUnknownFrame = errors.New("unable to parse client message")
)

// DecodeClientMessage parses one inbound text frame into a client message
// envelope. It is a pure parse; malformed JSON, wrong arity and unknown
// labels all come back as an error, never as a partial value.
func DecodeClientMessage(data []byte) (nostr.Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyFrame
	}
	env := nostr.ParseMessage(string(data))
	if env == nil {
		return nil, errUnknownFrame
	}
	return env, nil
}
