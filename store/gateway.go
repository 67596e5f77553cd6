// Package store implements the event store gateway: a narrow save/query/
// delete surface over a fiatjaf/eventstore backend, owning all rejection
// semantics (duplicates, ephemeral kinds, replacements, tombstones) so the
// relay core only ever sees SaveStatus values or hard errors.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"bolt/logging"

	"github.com/fiatjaf/eventstore"
	"github.com/nbd-wtf/go-nostr"
)

// Gateway wraps an eventstore backend with relay-level admission rules. It
// is safe for concurrent use from any number of connections; the backend
// owns its own locking.
type Gateway struct {
	backend eventstore.Store

	saveAttempts  int64
	saveAccepted  int64
	saveRejected  int64
	queryRequests int64
	queryReturned int64
	deleteScans   int64
	eventsDeleted int64
}

// Stats holds runtime counters exported by the gateway.
type Stats struct {
	SaveAttempts  int64 `json:"save_attempts"`
	SaveAccepted  int64 `json:"save_accepted"`
	SaveRejected  int64 `json:"save_rejected"`
	QueryRequests int64 `json:"query_requests"`
	QueryReturned int64 `json:"query_events_returned"`
	DeleteScans   int64 `json:"delete_scans"`
	EventsDeleted int64 `json:"events_deleted"`
}

// New creates a Gateway over the given backend. Call Init before use.
func New(backend eventstore.Store) *Gateway {
	return &Gateway{backend: backend}
}

func (g *Gateway) Init() error {
	return g.backend.Init()
}

func (g *Gateway) Close() {
	g.backend.Close()
}

// Stats returns a snapshot of the gateway counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		SaveAttempts:  atomic.LoadInt64(&g.saveAttempts),
		SaveAccepted:  atomic.LoadInt64(&g.saveAccepted),
		SaveRejected:  atomic.LoadInt64(&g.saveRejected),
		QueryRequests: atomic.LoadInt64(&g.queryRequests),
		QueryReturned: atomic.LoadInt64(&g.queryReturned),
		DeleteScans:   atomic.LoadInt64(&g.deleteScans),
		EventsDeleted: atomic.LoadInt64(&g.eventsDeleted),
	}
}

// SaveEvent persists evt unless an admission rule rejects it. A returned
// error means the backend itself failed; rejection is not an error.
func (g *Gateway) SaveEvent(ctx context.Context, evt *nostr.Event) (SaveStatus, error) {
	atomic.AddInt64(&g.saveAttempts, 1)

	status, err := g.saveEvent(ctx, evt)
	if err != nil {
		return status, err
	}
	if status.Accepted {
		atomic.AddInt64(&g.saveAccepted, 1)
	} else {
		atomic.AddInt64(&g.saveRejected, 1)
		logging.DebugMethod("store", "SaveEvent", "rejected %s: %s", evt.ID, status.Reason)
	}
	return status, nil
}

func (g *Gateway) saveEvent(ctx context.Context, evt *nostr.Event) (SaveStatus, error) {
	if isEphemeralKind(evt.Kind) {
		return rejected(ReasonEphemeral), nil
	}

	if exp, ok := Expiration(evt); ok && exp <= nostr.Now() {
		return rejected(ReasonExpired), nil
	}

	if evt.Kind == nostr.KindDeletion {
		ok, err := g.deleteTargetsOwnedBy(ctx, evt)
		if err != nil {
			return SaveStatus{}, err
		}
		if !ok {
			return rejected(ReasonInvalidDelete), nil
		}
	} else {
		tombstoned, err := g.isTombstoned(ctx, evt)
		if err != nil {
			return SaveStatus{}, err
		}
		if tombstoned {
			return rejected(ReasonDeleted), nil
		}
	}

	if isReplaceableKind(evt.Kind) || isAddressableKind(evt.Kind) {
		return g.replaceEvent(ctx, evt)
	}

	if err := g.backend.SaveEvent(ctx, evt); err != nil {
		if errors.Is(err, eventstore.ErrDupEvent) {
			return rejected(ReasonDuplicate), nil
		}
		return SaveStatus{}, fmt.Errorf("saving event %s: %w", evt.ID, err)
	}
	return accepted(), nil
}

// replaceEvent stores a replaceable or addressable event, rejecting it when
// the store already holds a newer version at the same address.
func (g *Gateway) replaceEvent(ctx context.Context, evt *nostr.Event) (SaveStatus, error) {
	filter := nostr.Filter{Kinds: []int{evt.Kind}, Authors: []string{evt.PubKey}}
	if isAddressableKind(evt.Kind) {
		filter.Tags = nostr.TagMap{"d": []string{firstTagValue(evt, "d")}}
	}

	existing, err := g.QueryEvents(ctx, filter)
	if err != nil {
		return SaveStatus{}, err
	}
	for _, prev := range existing {
		// same timestamp: the lexically smallest id wins
		if prev.CreatedAt > evt.CreatedAt ||
			(prev.CreatedAt == evt.CreatedAt && prev.ID <= evt.ID) {
			return rejected(ReasonReplaced), nil
		}
	}

	if err := g.backend.ReplaceEvent(ctx, evt); err != nil {
		if errors.Is(err, eventstore.ErrDupEvent) {
			return rejected(ReasonDuplicate), nil
		}
		return SaveStatus{}, fmt.Errorf("replacing event %s: %w", evt.ID, err)
	}
	return accepted(), nil
}

// isTombstoned reports whether the author has a stored deletion request
// referencing this event id. Resubmitting a deleted event is rejected.
func (g *Gateway) isTombstoned(ctx context.Context, evt *nostr.Event) (bool, error) {
	tombstones, err := g.QueryEvents(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindDeletion},
		Authors: []string{evt.PubKey},
		Tags:    nostr.TagMap{"e": []string{evt.ID}},
	})
	if err != nil {
		return false, err
	}
	return len(tombstones) > 0, nil
}

// deleteTargetsOwnedBy reports whether every stored event referenced by the
// deletion request's e tags belongs to the requesting author. References to
// unknown ids are fine; references to someone else's events are not.
func (g *Gateway) deleteTargetsOwnedBy(ctx context.Context, evt *nostr.Event) (bool, error) {
	var ids []string
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "e" && isHexID(tag[1]) {
			ids = append(ids, tag[1])
		}
	}
	if len(ids) == 0 {
		return true, nil
	}

	targets, err := g.QueryEvents(ctx, nostr.Filter{IDs: ids})
	if err != nil {
		return false, err
	}
	for _, target := range targets {
		if target.PubKey != evt.PubKey {
			return false, nil
		}
	}
	return true, nil
}

// QueryEvents runs the filter against the backend and materializes the
// results in store order.
func (g *Gateway) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	atomic.AddInt64(&g.queryRequests, 1)

	ch, err := g.backend.QueryEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	var events []*nostr.Event
	for evt := range ch {
		if evt == nil {
			continue
		}
		events = append(events, evt)
	}
	atomic.AddInt64(&g.queryReturned, int64(len(events)))
	return events, nil
}

// DeleteEvents removes every stored event matching the filter. When the
// filter carries an author constraint it is re-checked per event, so a
// backend matching wider than asked can never delete across authors.
func (g *Gateway) DeleteEvents(ctx context.Context, filter nostr.Filter) error {
	atomic.AddInt64(&g.deleteScans, 1)

	matches, err := g.QueryEvents(ctx, filter)
	if err != nil {
		return err
	}
	for _, evt := range matches {
		if len(filter.Authors) > 0 && !containsString(filter.Authors, evt.PubKey) {
			continue
		}
		if err := g.backend.DeleteEvent(ctx, evt); err != nil {
			return fmt.Errorf("deleting event %s: %w", evt.ID, err)
		}
		atomic.AddInt64(&g.eventsDeleted, 1)
	}
	return nil
}

// Expiration returns the NIP-40 expiration timestamp of evt, if it carries
// a parseable one.
func Expiration(evt *nostr.Event) (nostr.Timestamp, bool) {
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "expiration" {
			secs, err := strconv.ParseInt(tag[1], 10, 64)
			if err != nil {
				return 0, false
			}
			return nostr.Timestamp(secs), true
		}
	}
	return 0, false
}

func firstTagValue(evt *nostr.Event, key string) string {
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1]
		}
	}
	return ""
}

func isHexID(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isEphemeralKind(kind int) bool {
	return kind >= 20000 && kind < 30000
}

func isReplaceableKind(kind int) bool {
	return kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000)
}

func isAddressableKind(kind int) bool {
	return kind >= 30000 && kind < 40000
}
