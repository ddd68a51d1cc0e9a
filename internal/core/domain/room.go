package domain

import "fmt"

// MatchPolicy selects how a room records identities waiting to be paired.
type MatchPolicy string

const (
	// PolicyTwoSeat models a room as at most two seats; a third distinct
	// identity is rejected with ErrRoomFull.
	PolicyTwoSeat MatchPolicy = "two_seat"
	// PolicySingleSlot keeps only the most recent announcer. A third arrival
	// evicts whoever re-announces last.
	PolicySingleSlot MatchPolicy = "single_slot"
)

func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch MatchPolicy(s) {
	case PolicyTwoSeat, "":
		return PolicyTwoSeat, nil
	case PolicySingleSlot:
		return PolicySingleSlot, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

type MatchOutcome int

const (
	// MatchWaiting means no counterpart is present; the announcer waits.
	MatchWaiting MatchOutcome = iota
	// MatchPaired means a counterpart was already waiting. The counterpart,
	// being the earlier arriver, originates the offer and the announcer
	// awaits it.
	MatchPaired
)

func (o MatchOutcome) String() string {
	switch o {
	case MatchWaiting:
		return "waiting"
	case MatchPaired:
		return "paired"
	default:
		return fmt.Sprintf("MatchOutcome(%d)", int(o))
	}
}

// Match is the result of announcing readiness in a room.
type Match struct {
	Outcome     MatchOutcome
	Counterpart Username
}

func Waiting() Match {
	return Match{Outcome: MatchWaiting}
}

func PairedWith(counterpart Username) Match {
	return Match{Outcome: MatchPaired, Counterpart: counterpart}
}

func (m Match) IsPaired() bool {
	return m.Outcome == MatchPaired
}

// Offerer returns the identity that must originate the offer, or false when
// the announcer is still waiting.
func (m Match) Offerer() (Username, bool) {
	if !m.IsPaired() {
		return "", false
	}
	return m.Counterpart, true
}
