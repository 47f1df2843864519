package domain

// Status is the lifecycle state of a mentorship request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Party identifies which recorded side of a request performs an action.
// Party checks are evaluated at action time against the recorded parties,
// never against the actor's current role.
type Party int

const (
	PartyNone Party = iota
	PartyRequester
	PartyMentor
)

// transitions is the full edge set of the request lifecycle. Terminal states
// have no outgoing edges.
var transitions = map[Status]map[Status]Party{
	StatusPending: {
		StatusAccepted:  PartyMentor,
		StatusRejected:  PartyMentor,
		StatusCancelled: PartyRequester,
	},
	StatusAccepted: {
		StatusCompleted: PartyMentor,
		StatusCancelled: PartyRequester,
	},
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the from→to edge exists in the lifecycle.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// ActorFor returns which recorded party may drive the from→to transition.
// The second result is false when no such edge exists.
func ActorFor(from, to Status) (Party, bool) {
	party, ok := transitions[from][to]
	return party, ok
}
