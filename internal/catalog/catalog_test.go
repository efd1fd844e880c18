package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKnownCodes(t *testing.T) {
	for _, code := range Codes() {
		require.True(t, Known(code))
		e := Lookup(code)
		require.NotEmpty(t, e.Description)
		require.NotEmpty(t, e.Response)
	}

	require.Equal(t, "RAISE ELEVATOR", Describe(CodeRaiseElevator))
	require.Equal(t, "Elevator rising...", Lookup(CodeRaiseElevator).Response)
	require.Equal(t, OutcomeWarning, Lookup(CodeStop).Outcome)
}

func TestLookupUnknownCodeEchoes(t *testing.T) {
	require.False(t, Known(Code("Z")))
	require.Equal(t, "Z", Describe(Code("Z")))

	e := Lookup(Code("Z"))
	require.Equal(t, "Z", e.Description)
	require.Equal(t, OutcomeSuccess, e.Outcome)
}

func TestEmergencyIsStop(t *testing.T) {
	require.Equal(t, CodeStop, EmergencyCode)
}
