package relay

import (
	"fmt"

	"bolt/config"
	"bolt/store"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip13"
)

// validator runs the ordered admission pipeline over submitted events.
// Stages are ordered by cost: counting and length checks first, timestamp
// arithmetic next, proof-of-work and signature verification last, so cheap
// rejections never pay for the expensive stages.
type validator struct {
	limits       config.Limitations
	rejectFuture int64
}

func newValidator(cfg *config.Config) *validator {
	return &validator{
		limits:       cfg.Limits,
		rejectFuture: cfg.RejectFutureSeconds,
	}
}

// check returns "" when the event is admissible, or the user-facing
// rejection text of the first failing stage.
func (v *validator) check(now nostr.Timestamp, evt *nostr.Event) string {
	if len(evt.Tags) > v.limits.MaxEventTags {
		return fmt.Sprintf("invalid: event has more than %d tags", v.limits.MaxEventTags)
	}

	if len(evt.Content) > v.limits.MaxContentLength {
		return fmt.Sprintf("invalid: content is longer than %d bytes", v.limits.MaxContentLength)
	}

	if exp, ok := store.Expiration(evt); ok && exp <= now {
		return "invalid: event is expired"
	}

	if int64(evt.CreatedAt) > int64(now)+v.rejectFuture {
		return "invalid: created_at is too far in the future"
	}

	// the advertised upper limit is enforced too, independently of the
	// clock-skew tolerance
	if v.limits.CreatedAtUpperLimit > 0 &&
		int64(evt.CreatedAt) > int64(now)+v.limits.CreatedAtUpperLimit {
		return "invalid: created_at is too far in the future"
	}

	if v.limits.CreatedAtLowerLimit > 0 &&
		int64(evt.CreatedAt) < int64(now)-v.limits.CreatedAtLowerLimit {
		return "invalid: created_at is too far in the past"
	}

	if v.limits.MinPowDifficulty > 0 {
		if work := nip13.Difficulty(evt.ID); work < v.limits.MinPowDifficulty {
			return fmt.Sprintf("pow: difficulty %d is less than %d", work, v.limits.MinPowDifficulty)
		}
	}

	if evt.GetID() != evt.ID {
		return "invalid: id does not match the event fields"
	}
	if ok, err := evt.CheckSignature(); err != nil || !ok {
		return "invalid: signature is invalid"
	}

	return ""
}
