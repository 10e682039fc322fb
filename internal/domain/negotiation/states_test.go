package negotiation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCodes(t *testing.T) {
	codes := map[State]int32{
		StateInitial:     50,
		StateRequesting:  100,
		StateRequested:   200,
		StateOffering:    300,
		StateOffered:     400,
		StateAccepting:   700,
		StateAccepted:    800,
		StateAgreeing:    825,
		StateAgreed:      850,
		StateVerifying:   1050,
		StateVerified:    1100,
		StateFinalizing:  1150,
		StateFinalized:   1200,
		StateTerminating: 1300,
		StateTerminated:  1400,
	}
	for state, code := range codes {
		assert.Equal(t, code, state.Code())
		decoded, err := StateFromCode(code)
		require.NoError(t, err)
		assert.Equal(t, state, decoded)
	}
}

func TestStateFromCode_Unknown(t *testing.T) {
	_, err := StateFromCode(999)
	assert.Error(t, err)
}

func TestStateFromName(t *testing.T) {
	s, err := StateFromName("REQUESTED")
	require.NoError(t, err)
	assert.Equal(t, StateRequested, s)

	_, err = StateFromName("LIMBO")
	assert.Error(t, err)
}

func TestStateIsTerminal(t *testing.T) {
	assert.True(t, StateFinalized.IsTerminal())
	assert.True(t, StateTerminated.IsTerminal())
	assert.False(t, StateInitial.IsTerminal())
	assert.False(t, StateTerminating.IsTerminal())
	assert.False(t, StateVerified.IsTerminal())
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(StateOffered)
	require.NoError(t, err)
	assert.Equal(t, `"OFFERED"`, string(data))

	var byName State
	require.NoError(t, json.Unmarshal([]byte(`"AGREEING"`), &byName))
	assert.Equal(t, StateAgreeing, byName)

	var byCode State
	require.NoError(t, json.Unmarshal([]byte(`1200`), &byCode))
	assert.Equal(t, StateFinalized, byCode)

	var bad State
	assert.Error(t, json.Unmarshal([]byte(`"LIMBO"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`12345`), &bad))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		from     State
		to       State
		expected bool
	}{
		{name: "initiator INITIAL -> REQUESTING", typ: TypeInitiator, from: StateInitial, to: StateRequesting, expected: true},
		{name: "initiator INITIAL -> OFFERING (invalid)", typ: TypeInitiator, from: StateInitial, to: StateOffering, expected: false},
		{name: "initiator REQUESTING -> REQUESTED", typ: TypeInitiator, from: StateRequesting, to: StateRequested, expected: true},
		{name: "initiator REQUESTED -> OFFERED", typ: TypeInitiator, from: StateRequested, to: StateOffered, expected: true},
		{name: "initiator OFFERED -> REQUESTING (counter)", typ: TypeInitiator, from: StateOffered, to: StateRequesting, expected: true},
		{name: "initiator OFFERED -> ACCEPTING", typ: TypeInitiator, from: StateOffered, to: StateAccepting, expected: true},
		{name: "initiator ACCEPTED -> AGREED", typ: TypeInitiator, from: StateAccepted, to: StateAgreed, expected: true},
		{name: "initiator AGREED -> VERIFYING", typ: TypeInitiator, from: StateAgreed, to: StateVerifying, expected: true},
		{name: "initiator VERIFIED -> FINALIZED", typ: TypeInitiator, from: StateVerified, to: StateFinalized, expected: true},
		{name: "initiator never AGREEING", typ: TypeInitiator, from: StateAccepted, to: StateAgreeing, expected: false},

		{name: "responder INITIAL -> REQUESTED", typ: TypeResponder, from: StateInitial, to: StateRequested, expected: true},
		{name: "responder INITIAL -> OFFERING", typ: TypeResponder, from: StateInitial, to: StateOffering, expected: true},
		{name: "responder INITIAL -> REQUESTING (invalid)", typ: TypeResponder, from: StateInitial, to: StateRequesting, expected: false},
		{name: "responder REQUESTED -> AGREEING", typ: TypeResponder, from: StateRequested, to: StateAgreeing, expected: true},
		{name: "responder OFFERED -> ACCEPTED", typ: TypeResponder, from: StateOffered, to: StateAccepted, expected: true},
		{name: "responder OFFERED -> OFFERING (new round)", typ: TypeResponder, from: StateOffered, to: StateOffering, expected: true},
		{name: "responder AGREEING -> AGREED", typ: TypeResponder, from: StateAgreeing, to: StateAgreed, expected: true},
		{name: "responder VERIFIED -> FINALIZING", typ: TypeResponder, from: StateVerified, to: StateFinalizing, expected: true},
		{name: "responder FINALIZING -> FINALIZED", typ: TypeResponder, from: StateFinalizing, to: StateFinalized, expected: true},

		{name: "same-state retry", typ: TypeInitiator, from: StateRequesting, to: StateRequesting, expected: true},
		{name: "terminating from anywhere", typ: TypeResponder, from: StateOffering, to: StateTerminating, expected: true},
		{name: "terminated directly on inbound message", typ: TypeInitiator, from: StateRequested, to: StateTerminated, expected: true},
		{name: "nothing leaves FINALIZED", typ: TypeInitiator, from: StateFinalized, to: StateTerminating, expected: false},
		{name: "nothing leaves TERMINATED", typ: TypeResponder, from: StateTerminated, to: StateTerminated, expected: false},
		{name: "no skipping ahead", typ: TypeInitiator, from: StateRequesting, to: StateVerified, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.typ, tt.from, tt.to))
		})
	}
}
