package domain

// Status represents the lifecycle state of a return
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusReceived  Status = "RECEIVED"
	StatusRefunded  Status = "REFUNDED"
	StatusExchanged Status = "EXCHANGED"
	StatusDeclined  Status = "DECLINED"
	StatusCanceled  Status = "CANCELED"
	StatusClosed    Status = "CLOSED"
)

// transitions is the complete legal-transition table. Statuses absent as keys are terminal.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusRequested, StatusCanceled},
	StatusRequested: {StatusApproved, StatusDeclined, StatusCanceled},
	StatusApproved:  {StatusInTransit, StatusCanceled},
	StatusInTransit: {StatusReceived, StatusCanceled},
	StatusReceived:  {StatusRefunded, StatusExchanged},
	StatusRefunded:  {StatusClosed},
	StatusExchanged: {StatusClosed},
}

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusDraft, StatusRequested, StatusApproved, StatusInTransit, StatusReceived,
	StatusRefunded, StatusExchanged, StatusDeclined, StatusCanceled, StatusClosed,
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCanceled || s == StatusClosed
}

// AllowedTransitions returns a copy of the targets reachable from s
func (s Status) AllowedTransitions() []Status {
	targets := transitions[s]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// CanTransitionTo reports whether target is a legal next status
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}
