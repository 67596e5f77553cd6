package store

// Reason enumerates why a save attempt was rejected by the gateway. The
// gateway is the only producer of these; callers just map them to
// user-facing text.
type Reason int

const (
	ReasonEphemeral Reason = iota
	ReasonDuplicate
	ReasonDeleted
	ReasonExpired
	ReasonReplaced
	ReasonInvalidDelete
	ReasonOther
)

// String returns the user-facing text for the rejection reason. Unknown
// values fall back to the generic text instead of being dropped.
func (r Reason) String() string {
	switch r {
	case ReasonEphemeral:
		return "ephemeral event"
	case ReasonDuplicate:
		return "duplicate event"
	case ReasonDeleted:
		return "deleted event"
	case ReasonExpired:
		return "expired event"
	case ReasonReplaced:
		return "replaced event"
	case ReasonInvalidDelete:
		return "invalid delete"
	default:
		return "other"
	}
}

// SaveStatus is the outcome of a save attempt that reached the store, as
// opposed to a store-level error.
type SaveStatus struct {
	Accepted bool
	Reason   Reason // meaningful only when Accepted is false
}

func accepted() SaveStatus {
	return SaveStatus{Accepted: true}
}

func rejected(r Reason) SaveStatus {
	return SaveStatus{Accepted: false, Reason: r}
}
