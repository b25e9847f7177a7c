package domain

import (
	"fmt"
)

// SuggestionStatus tracks the suggestion fetch in view_suggestion.
type SuggestionStatus string

const (
	SuggestionStatusNone        SuggestionStatus = ""
	SuggestionStatusPending     SuggestionStatus = "pending"
	SuggestionStatusReady       SuggestionStatus = "ready"
	SuggestionStatusUnavailable SuggestionStatus = "unavailable"
	SuggestionStatusFailed      SuggestionStatus = "failed"
)

// State is the immutable value a scanner session is in. The engine never
// mutates a State; it returns a new one.
type State struct {
	Operation        Operation          `json:"operation" bson:"operation"`
	Phase            Phase              `json:"phase" bson:"phase"`
	Revision         uint64             `json:"revision" bson:"revision"`
	Source           *ScannedEntity     `json:"source,omitempty" bson:"source,omitempty"`
	Suggestion       *Suggestion        `json:"suggestion,omitempty" bson:"suggestion,omitempty"`
	SuggestionStatus SuggestionStatus   `json:"suggestionStatus,omitempty" bson:"suggestionStatus,omitempty"`
	Destination      *DestinationEntity `json:"destination,omitempty" bson:"destination,omitempty"`
	Override         bool               `json:"override" bson:"override"`
	OverrideReason   string             `json:"overrideReason,omitempty" bson:"overrideReason,omitempty"`
	Quantity         *float64           `json:"quantity,omitempty" bson:"quantity,omitempty"`
	Warnings         []Warning          `json:"warnings,omitempty" bson:"warnings,omitempty"`
	Error            *Failure           `json:"error,omitempty" bson:"error,omitempty"`
	Result           *Result            `json:"result,omitempty" bson:"result,omitempty"`
	SubmissionKey    string             `json:"submissionKey,omitempty" bson:"submissionKey,omitempty"`
}

// NewState returns the initial state of an operation.
func NewState(op Operation) (State, error) {
	if _, err := VariantFor(op); err != nil {
		return State{}, err
	}
	return State{Operation: op, Phase: PhaseScanSource}, nil
}

// Clone returns a deep copy so callers can hand the state out freely.
func (s State) Clone() State {
	out := s
	if s.Source != nil {
		src := *s.Source
		src.AvailableQty = cloneFloat(s.Source.AvailableQty)
		src.RemainingQty = cloneFloat(s.Source.RemainingQty)
		if s.Source.Expiry != nil {
			exp := *s.Source.Expiry
			src.Expiry = &exp
		}
		out.Source = &src
	}
	if s.Suggestion != nil {
		sug := *s.Suggestion
		sug.Alternatives = append([]Alternative(nil), s.Suggestion.Alternatives...)
		out.Suggestion = &sug
	}
	if s.Destination != nil {
		dst := *s.Destination
		dst.RemainingQty = cloneFloat(s.Destination.RemainingQty)
		out.Destination = &dst
	}
	out.Quantity = cloneFloat(s.Quantity)
	if s.Warnings != nil {
		out.Warnings = append([]Warning(nil), s.Warnings...)
	}
	if s.Error != nil {
		f := *s.Error
		out.Error = &f
	}
	if s.Result != nil {
		r := *s.Result
		r.Records = append([]RecordRef(nil), s.Result.Records...)
		if s.Result.Counters != nil {
			r.Counters = make(map[string]float64, len(s.Result.Counters))
			for k, v := range s.Result.Counters {
				r.Counters[k] = v
			}
		}
		out.Result = &r
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Mismatch returns the pending mismatch: a destination that differs from the
// suggestion and has not been overridden.
func (s State) Mismatch() (Mismatch, bool) {
	if s.Destination == nil || s.Suggestion == nil || s.Override {
		return Mismatch{}, false
	}
	if s.Destination.Matches(*s.Suggestion) {
		return Mismatch{}, false
	}
	return newMismatch(*s.Suggestion, *s.Destination), true
}

// Deviates reports whether the chosen destination differs from the
// suggestion, overridden or not.
func (s State) Deviates() bool {
	return s.Destination != nil && s.Suggestion != nil && !s.Destination.Matches(*s.Suggestion)
}

// Warning returns the most recent warning, if any.
func (s State) Warning() *Warning {
	if len(s.Warnings) == 0 {
		return nil
	}
	w := s.Warnings[len(s.Warnings)-1]
	return &w
}

// Validate checks the structural invariants every reachable state satisfies.
func (s State) Validate() error {
	v, err := VariantFor(s.Operation)
	if err != nil {
		return err
	}
	if !v.Has(s.Phase) {
		return fmt.Errorf("%w: phase %s not part of %s", ErrInvariantViolated, s.Phase, s.Operation)
	}
	if s.Destination != nil && s.Source == nil {
		return fmt.Errorf("%w: destination without source", ErrInvariantViolated)
	}
	if s.Override {
		if s.Destination == nil || s.Suggestion == nil {
			return fmt.Errorf("%w: override without destination and suggestion", ErrInvariantViolated)
		}
		if s.Destination.Matches(*s.Suggestion) {
			return fmt.Errorf("%w: override on matching destination", ErrInvariantViolated)
		}
	}
	if s.Error != nil && s.Result != nil {
		return fmt.Errorf("%w: error and result both set", ErrInvariantViolated)
	}
	if s.Phase == PhaseSuccess && s.Result == nil {
		return fmt.Errorf("%w: success without result", ErrInvariantViolated)
	}
	if s.Result != nil && s.Phase != PhaseSuccess {
		return fmt.Errorf("%w: result outside success", ErrInvariantViolated)
	}
	if v.Before(PhaseScanSource, s.Phase) && s.Source == nil {
		return fmt.Errorf("%w: phase %s requires a source", ErrInvariantViolated, s.Phase)
	}
	if v.Before(PhaseScanDestination, s.Phase) {
		if s.Destination == nil {
			return fmt.Errorf("%w: phase %s requires a destination", ErrInvariantViolated, s.Phase)
		}
		if _, pending := s.Mismatch(); pending {
			return fmt.Errorf("%w: unresolved destination mismatch past scan_destination", ErrInvariantViolated)
		}
	}
	if v.CapturesQuantity() && v.Before(PhaseEnterQuantity, s.Phase) && s.Quantity == nil {
		return fmt.Errorf("%w: phase %s requires a quantity", ErrInvariantViolated, s.Phase)
	}
	if s.Phase == PhaseSubmitting && s.SubmissionKey == "" {
		return fmt.Errorf("%w: submitting without submission key", ErrInvariantViolated)
	}
	return nil
}
