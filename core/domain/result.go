package domain

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeDeleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeFailed:
		return "failed"
	}
	return "skipped"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// DeletionResult is what happened to one plan entry during apply.
type DeletionResult struct {
	ID      ImageID `json:"id"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	// AlreadyAbsent is set when the registry no longer held the image.
	AlreadyAbsent bool `json:"already_absent,omitempty"`
}

// ImageFailure is a per-image failure reported by a batch delete call.
type ImageFailure struct {
	ID       ImageID
	Code     string
	Message  string
	NotFound bool
}
