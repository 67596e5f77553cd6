package relay

import (
	"context"
	"fmt"

	"bolt/config"
	"bolt/logging"
	"bolt/store"

	"github.com/nbd-wtf/go-nostr"
)

// EventStore is the capability surface the pipeline needs from storage.
// Errors returned here are store failures, fatal to the current connection;
// rejections travel inside SaveStatus.
type EventStore interface {
	SaveEvent(ctx context.Context, evt *nostr.Event) (store.SaveStatus, error)
	QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	DeleteEvents(ctx context.Context, filter nostr.Filter) error
}

// session processes one connection's frames strictly in order. It holds no
// state across messages beyond the shared config and store handles, so a bad
// message can never corrupt the handling of the next one.
type session struct {
	cfg       *config.Config
	db        EventStore
	validator *validator
}

func newSession(cfg *config.Config, db EventStore) *session {
	return &session{cfg: cfg, db: db, validator: newValidator(cfg)}
}

// handleFrame turns one inbound text frame into the ordered list of
// responses for it. A non-nil error means a store failure; the caller must
// close the connection instead of replying.
func (s *session) handleFrame(ctx context.Context, data []byte) ([]nostr.Envelope, error) {
	env, err := DecodeClientMessage(data)
	if err != nil {
		return []nostr.Envelope{noticeMessage("invalid: " + err.Error())}, nil
	}

	switch msg := env.(type) {
	case *nostr.EventEnvelope:
		return s.handleEvent(ctx, &msg.Event)
	case *nostr.ReqEnvelope:
		return s.handleReq(ctx, msg)
	case *nostr.CloseEnvelope:
		// nothing is live to cancel; acknowledge and move on
		return []nostr.Envelope{closedMessage(string(*msg), "")}, nil
	case *nostr.CountEnvelope:
		return []nostr.Envelope{noticeMessage("unsupported: COUNT is not supported")}, nil
	case *nostr.AuthEnvelope:
		return []nostr.Envelope{noticeMessage("unsupported: AUTH is not supported")}, nil
	default:
		return []nostr.Envelope{noticeMessage(fmt.Sprintf("unsupported: unknown message %s", env.Label()))}, nil
	}
}

// handleEvent runs the admission pipeline and stores the event, special-
// casing deletion requests.
func (s *session) handleEvent(ctx context.Context, evt *nostr.Event) ([]nostr.Envelope, error) {
	if reason := s.validator.check(nostr.Now(), evt); reason != "" {
		logging.DebugMethod("relay", "handleEvent", "rejected %s: %s", evt.ID, reason)
		return []nostr.Envelope{noticeMessage(reason)}, nil
	}

	if evt.Kind == nostr.KindDeletion {
		return s.handleDeletion(ctx, evt)
	}

	status, err := s.db.SaveEvent(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !status.Accepted {
		return []nostr.Envelope{noticeMessage(status.Reason.String())}, nil
	}
	return []nostr.Envelope{okMessage(evt.ID, true, "")}, nil
}

// handleDeletion stores the deletion request itself first, so every acted-on
// deletion is auditable; only after that save succeeds are the referenced
// events removed.
func (s *session) handleDeletion(ctx context.Context, evt *nostr.Event) ([]nostr.Envelope, error) {
	status, err := s.db.SaveEvent(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !status.Accepted {
		// an unstorable deletion request is not acted upon
		return []nostr.Envelope{noticeMessage(status.Reason.String())}, nil
	}

	if filter, ok := deletionFilter(evt); ok {
		if err := s.db.DeleteEvents(ctx, filter); err != nil {
			return nil, err
		}
	}

	return []nostr.Envelope{okMessage(evt.ID, true, "")}, nil
}

// handleReq answers the subscription query once and closes it: every stored
// match, one EOSE, one CLOSED, in that order.
func (s *session) handleReq(ctx context.Context, req *nostr.ReqEnvelope) ([]nostr.Envelope, error) {
	subID := req.SubscriptionID
	if len(subID) > s.cfg.Limits.MaxSubidLength {
		return []nostr.Envelope{closedMessage(subID, "invalid: subscription id is too long")}, nil
	}
	if len(req.Filters) == 0 {
		return []nostr.Envelope{closedMessage(subID, "invalid: no filters provided")}, nil
	}
	if len(req.Filters) > s.cfg.Limits.MaxFilters {
		return []nostr.Envelope{closedMessage(subID, fmt.Sprintf("invalid: more than %d filters", s.cfg.Limits.MaxFilters))}, nil
	}

	var responses []nostr.Envelope
	for _, filter := range req.Filters {
		// an explicit "limit":0 asks for zero stored events, not the default
		if filter.LimitZero {
			continue
		}
		if filter.Limit <= 0 || filter.Limit > s.cfg.Limits.MaxLimit {
			filter.Limit = s.cfg.Limits.MaxLimit
		}

		events, err := s.db.QueryEvents(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, evt := range events {
			responses = append(responses, eventMessage(subID, evt))
		}
	}

	responses = append(responses, eoseMessage(subID))
	responses = append(responses, closedMessage(subID, ""))
	return responses, nil
}
