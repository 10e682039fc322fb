package negotiation

import (
	"encoding/json"
	"fmt"
)

// State is a negotiation lifecycle state. The numeric values are the stable
// codes persisted by the store; gaps leave room for intermediate states.
type State int32

const (
	StateInitial     State = 50
	StateRequesting  State = 100
	StateRequested   State = 200
	StateOffering    State = 300
	StateOffered     State = 400
	StateAccepting   State = 700
	StateAccepted    State = 800
	StateAgreeing    State = 825
	StateAgreed      State = 850
	StateVerifying   State = 1050
	StateVerified    State = 1100
	StateFinalizing  State = 1150
	StateFinalized   State = 1200
	StateTerminating State = 1300
	StateTerminated  State = 1400
)

var stateNames = map[State]string{
	StateInitial:     "INITIAL",
	StateRequesting:  "REQUESTING",
	StateRequested:   "REQUESTED",
	StateOffering:    "OFFERING",
	StateOffered:     "OFFERED",
	StateAccepting:   "ACCEPTING",
	StateAccepted:    "ACCEPTED",
	StateAgreeing:    "AGREEING",
	StateAgreed:      "AGREED",
	StateVerifying:   "VERIFYING",
	StateVerified:    "VERIFIED",
	StateFinalizing:  "FINALIZING",
	StateFinalized:   "FINALIZED",
	StateTerminating: "TERMINATING",
	StateTerminated:  "TERMINATED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(s))
}

// Code returns the persisted numeric form.
func (s State) Code() int32 {
	return int32(s)
}

// IsTerminal reports whether no further transition may leave s.
func (s State) IsTerminal() bool {
	return s == StateFinalized || s == StateTerminated
}

// StateFromCode decodes a persisted state code.
func StateFromCode(code int32) (State, error) {
	s := State(code)
	if _, ok := stateNames[s]; !ok {
		return 0, fmt.Errorf("unknown negotiation state code %d", code)
	}
	return s, nil
}

// StateFromName decodes a state by its name, as used in API payloads.
func StateFromName(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown negotiation state %q", name)
}

// MarshalJSON emits the state name; UnmarshalJSON accepts a name or a
// numeric code.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		decoded, err := StateFromName(name)
		if err != nil {
			return err
		}
		*s = decoded
		return nil
	}
	var code int32
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("negotiation state must be a name or code: %w", err)
	}
	decoded, err := StateFromCode(code)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Forward transitions per negotiation side. The initiator drives REQUESTING,
// ACCEPTING and VERIFYING and observes the counterpart's results; the
// responder drives OFFERING, AGREEING and FINALIZING. Same-state re-entry
// and the jump to TERMINATING/TERMINATED from any non-terminal state are
// handled in CanTransition, not listed here.
var initiatorTransitions = map[State][]State{
	StateInitial:    {StateRequesting},
	StateRequesting: {StateRequested},
	StateRequested:  {StateOffered, StateAgreed},
	StateOffered:    {StateRequesting, StateAccepting},
	StateAccepting:  {StateAccepted},
	StateAccepted:   {StateAgreed},
	StateAgreed:     {StateVerifying},
	StateVerifying:  {StateVerified},
	StateVerified:   {StateFinalized},
}

var responderTransitions = map[State][]State{
	StateInitial:    {StateRequested, StateOffering},
	StateRequested:  {StateOffering, StateAgreeing},
	StateOffering:   {StateOffered},
	StateOffered:    {StateRequested, StateAccepted, StateOffering},
	StateAccepted:   {StateAgreeing},
	StateAgreeing:   {StateAgreed},
	StateAgreed:     {StateVerified},
	StateVerified:   {StateFinalizing},
	StateFinalizing: {StateFinalized},
}

// CanTransition reports whether a negotiation of the given type may move
// from one state to another. The store itself never enforces this; it is the
// protocol driver's check.
func CanTransition(typ Type, from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == from {
		return true
	}
	if to == StateTerminating || to == StateTerminated {
		return true
	}
	table := initiatorTransitions
	if typ == TypeResponder {
		table = responderTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}
