package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CloneIsDeep(t *testing.T) {
	s := mustApply(t, newState(t, OperationPick),
		ItemScanned{Item: ScannedEntity{ID: "pl-1", Code: "PICK-1", RemainingQty: qty(4)}},
		SuggestionReady{Suggestion: Suggestion{TargetID: "lp-1", Alternatives: []Alternative{{TargetID: "lp-2"}}}},
		ProceedRequested{},
		DestinationScanned{Destination: DestinationEntity{ID: "lp-1"}},
		QuantityEntered{Quantity: 5},
	)

	c := s.Clone()
	*c.Source.RemainingQty = 99
	c.Suggestion.Alternatives[0].TargetID = "changed"
	*c.Quantity = 1
	c.Warnings[0].Message = "changed"

	assert.Equal(t, 4.0, *s.Source.RemainingQty)
	assert.Equal(t, "lp-2", s.Suggestion.Alternatives[0].TargetID)
	assert.Equal(t, 5.0, *s.Quantity)
	assert.NotEqual(t, "changed", s.Warnings[0].Message)
}

func TestState_TransitionDoesNotAliasInput(t *testing.T) {
	s := mustApply(t, newState(t, OperationMove), ItemScanned{Item: lp("1")})
	before := s.Clone()

	next := mustApply(t, s, DestinationScanned{Destination: loc("B1")})
	next.Source.Code = "mutated"

	assert.Equal(t, before, s)
}

func TestState_Validate(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"phase outside variant", State{Operation: OperationMove, Phase: PhaseViewSuggestion}},
		{"destination without source", State{Operation: OperationMove, Phase: PhaseScanDestination, Destination: &DestinationEntity{ID: "B1"}}},
		{"confirm without destination", State{Operation: OperationMove, Phase: PhaseConfirm, Source: &ScannedEntity{ID: "1"}}},
		{"success without result", State{Operation: OperationMove, Phase: PhaseSuccess, Source: &ScannedEntity{ID: "1"}, Destination: &DestinationEntity{ID: "B1"}}},
		{"submitting without key", State{Operation: OperationMove, Phase: PhaseSubmitting, Source: &ScannedEntity{ID: "1"}, Destination: &DestinationEntity{ID: "B1"}}},
		{"override on match", State{
			Operation: OperationPutaway, Phase: PhaseConfirm, Source: &ScannedEntity{ID: "1"},
			Suggestion: &Suggestion{TargetID: "A1"}, Destination: &DestinationEntity{ID: "A1"}, Override: true,
		}},
		{"unresolved mismatch in confirm", State{
			Operation: OperationPutaway, Phase: PhaseConfirm, Source: &ScannedEntity{ID: "1"},
			Suggestion: &Suggestion{TargetID: "A1"}, Destination: &DestinationEntity{ID: "B2"},
		}},
		{"quantity missing in confirm", State{
			Operation: OperationConsume, Phase: PhaseConfirm, Source: &ScannedEntity{ID: "1"}, Destination: &DestinationEntity{ID: "wo-line"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.state.Validate(), ErrInvariantViolated)
		})
	}

	initial := newState(t, OperationPack)
	require.NoError(t, initial.Validate())
}

func TestState_MismatchAndDeviates(t *testing.T) {
	s := mustApply(t, putawayAtDestination(t), DestinationScanned{Destination: loc("B2")})
	_, pending := s.Mismatch()
	assert.True(t, pending)
	assert.True(t, s.Deviates())

	s = mustApply(t, s, OverrideChosen{})
	_, pending = s.Mismatch()
	assert.False(t, pending)
	assert.True(t, s.Deviates())
}

func TestFailureFromError(t *testing.T) {
	f := FailureFromError(NewGatewayError(ErrorKindInactive, "LOCATION_INACTIVE", "location A1 is blocked"))
	assert.Equal(t, ErrorKindInactive, f.Kind)
	assert.Equal(t, "LOCATION_INACTIVE", f.Code)
	assert.Equal(t, "location A1 is blocked", f.Message)

	f = FailureFromError(assert.AnError)
	assert.Equal(t, ErrorKindTransport, f.Kind)
	assert.True(t, f.Kind.Retryable())
	assert.False(t, ErrorKindNotFound.Retryable())
	assert.False(t, ErrorKindConflict.Retryable())
}
