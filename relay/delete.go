package relay

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// deletionFilter builds the store filter for a NIP-09 deletion request.
// Tags are parsed best-effort in original order: "e" tags contribute event
// ids, "k" tags narrow the match to those kinds, anything unparseable is
// skipped. The filter is always scoped to the deletion event's own author;
// that author constraint is what keeps one user from deleting another's
// events, no matter which ids the tags name.
//
// "a" tags (addressable-event references) are not resolved; see DESIGN.md.
//
// The second return is false when no parseable "e" tag exists, in which case
// nothing is to be deleted.
func deletionFilter(evt *nostr.Event) (nostr.Filter, bool) {
	var ids []string
	var kinds []int

	for _, tag := range evt.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			if isEventID(tag[1]) {
				ids = append(ids, tag[1])
			}
		case "k":
			if kind, err := strconv.Atoi(tag[1]); err == nil && kind >= 0 {
				kinds = append(kinds, kind)
			}
		}
	}

	if len(ids) == 0 {
		return nostr.Filter{}, false
	}

	return nostr.Filter{
		Authors: []string{evt.PubKey},
		IDs:     ids,
		Kinds:   kinds,
	}, true
}

func isEventID(s string) bool {
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
