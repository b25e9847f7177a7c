package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Transition applies e to s. It is pure and deterministic: an accepted event
// yields a new state with Revision incremented; a rejected event yields s
// unchanged and a *TransitionError.
func Transition(s State, e Event) (State, error) {
	if e == nil {
		return s, &TransitionError{Phase: s.Phase, Event: "", Reason: "nil event"}
	}
	v, err := VariantFor(s.Operation)
	if err != nil {
		return s, &TransitionError{Phase: s.Phase, Event: e.Type(), Reason: err.Error()}
	}

	next, reason := apply(v, s.Clone(), e)
	if reason != "" {
		return s, &TransitionError{Phase: s.Phase, Event: e.Type(), Reason: reason}
	}
	if err := next.Validate(); err != nil {
		return s, &TransitionError{Phase: s.Phase, Event: e.Type(), Reason: err.Error()}
	}
	next.Revision = s.Revision + 1
	return next, nil
}

// apply returns the next state or a non-empty rejection reason.
func apply(v Variant, s State, e Event) (State, string) {
	switch ev := e.(type) {
	case ItemScanned:
		if s.Phase != PhaseScanSource {
			return s, "item scans are accepted only in scan_source"
		}
		item := ev.Item
		s.Source = &item
		s.Error = nil
		s.Phase = mustNext(v, PhaseScanSource)
		if s.Phase == PhaseViewSuggestion {
			s.SuggestionStatus = SuggestionStatusPending
		}
		return s, ""

	case ItemLookupFailed:
		if s.Phase != PhaseScanSource {
			return s, "item lookup results are accepted only in scan_source"
		}
		f := ev.Failure
		s.Error = &f
		return s, ""

	case SuggestionReady:
		if s.Phase != PhaseViewSuggestion || s.SuggestionStatus != SuggestionStatusPending {
			return s, "no suggestion is pending"
		}
		sug := ev.Suggestion
		sug.Alternatives = append([]Alternative(nil), ev.Suggestion.Alternatives...)
		s.Suggestion = &sug
		s.SuggestionStatus = SuggestionStatusReady
		s.Error = nil
		return s, ""

	case SuggestionUnavailable:
		if s.Phase != PhaseViewSuggestion || s.SuggestionStatus != SuggestionStatusPending {
			return s, "no suggestion is pending"
		}
		s.Suggestion = nil
		s.SuggestionStatus = SuggestionStatusUnavailable
		s.Error = nil
		return s, ""

	case SuggestionFailed:
		if s.Phase != PhaseViewSuggestion || s.SuggestionStatus != SuggestionStatusPending {
			return s, "no suggestion is pending"
		}
		f := ev.Failure
		s.SuggestionStatus = SuggestionStatusFailed
		s.Error = &f
		return s, ""

	case ProceedRequested:
		if s.Phase != PhaseViewSuggestion {
			return s, "proceed is accepted only in view_suggestion"
		}
		if s.SuggestionStatus != SuggestionStatusReady && s.SuggestionStatus != SuggestionStatusUnavailable {
			return s, "suggestion is not resolved yet"
		}
		s.Error = nil
		s.Phase = mustNext(v, PhaseViewSuggestion)
		return s, ""

	case DestinationScanned:
		if s.Phase != PhaseScanDestination {
			return s, "destination scans are accepted only in scan_destination"
		}
		return scanDestination(v, s, ev.Destination), ""

	case DestinationLookupFailed:
		if s.Phase != PhaseScanDestination {
			return s, "destination lookup results are accepted only in scan_destination"
		}
		f := ev.Failure
		s.Error = &f
		return s, ""

	case QuantityEntered:
		if s.Phase != PhaseEnterQuantity {
			return s, "quantities are accepted only in enter_quantity"
		}
		return enterQuantity(v, s, ev.Quantity), ""

	case OverrideChosen:
		if s.Phase != PhaseScanDestination {
			return s, "override is accepted only in scan_destination"
		}
		if _, pending := s.Mismatch(); !pending {
			return s, "no destination mismatch to override"
		}
		s.Override = true
		s.OverrideReason = ev.Reason
		s.Error = nil
		s.Phase = mustNext(v, PhaseScanDestination)
		return s, ""

	case UseSuggestedChosen:
		if s.Phase != PhaseScanDestination {
			return s, "use-suggested is accepted only in scan_destination"
		}
		if _, pending := s.Mismatch(); !pending {
			return s, "no destination mismatch to resolve"
		}
		clearDestination(&s)
		s.Error = nil
		return s, ""

	case SubmitRequested:
		if s.Phase != PhaseConfirm {
			return s, "submit is accepted only in confirm"
		}
		if ev.SubmissionKey == "" {
			return s, "submission key is required"
		}
		if s.SubmissionKey != "" && s.SubmissionKey != ev.SubmissionKey {
			return s, "submission key must not change between attempts"
		}
		if _, pending := s.Mismatch(); pending {
			return s, "destination mismatch is unresolved"
		}
		s.SubmissionKey = ev.SubmissionKey
		s.Error = nil
		s.Phase = PhaseSubmitting
		return s, ""

	case SubmitSucceeded:
		if s.Phase != PhaseSubmitting {
			return s, "no submission is in flight"
		}
		res := ev.Result
		s.Result = &res
		s.Error = nil
		s.Phase = PhaseSuccess
		return s, ""

	case SubmitFailed:
		if s.Phase != PhaseSubmitting {
			return s, "no submission is in flight"
		}
		f := ev.Failure
		s.Error = &f
		s.Phase = PhaseConfirm
		return s, ""

	case BackRequested:
		switch s.Phase {
		case PhaseScanSource, PhaseSubmitting, PhaseSuccess:
			return s, "back is not available from " + string(s.Phase)
		}
		prev, ok := v.Previous(s.Phase)
		if !ok {
			return s, "no previous phase"
		}
		clearFrom(v, &s, prev)
		s.Error = nil
		s.Phase = prev
		return s, ""

	case ResetRequested:
		return State{Operation: s.Operation, Phase: PhaseScanSource}, ""

	case RetryRequested:
		if s.Error == nil {
			return s, "there is no error to retry"
		}
		s.Error = nil
		if s.SuggestionStatus == SuggestionStatusFailed {
			s.SuggestionStatus = SuggestionStatusPending
		}
		return s, ""
	}

	return s, fmt.Sprintf("unsupported event %T", e)
}

func mustNext(v Variant, p Phase) Phase {
	next, ok := v.Next(p)
	if !ok {
		return p
	}
	return next
}

func scanDestination(v Variant, s State, dest DestinationEntity) State {
	if v.rejectSameLocation && s.Source != nil && s.Source.LocationID != "" && dest.ID == s.Source.LocationID {
		clearDestination(&s)
		s.Error = &Failure{
			Kind:    ErrorKindInvalidInput,
			Code:    CodeSameLocation,
			Message: fmt.Sprintf("%s is already in %s", s.Source.Code, dest.Code),
		}
		return s
	}

	clearDestination(&s)
	s.Destination = &dest
	s.Error = nil
	if dest.AtCapacity {
		s.Warnings = append(s.Warnings, Warning{
			Kind:    WarningAtCapacity,
			Message: fmt.Sprintf("%s is at or over capacity", dest.Code),
			Phase:   PhaseScanDestination,
		})
	}

	if s.Suggestion == nil || dest.Matches(*s.Suggestion) {
		s.Phase = mustNext(v, PhaseScanDestination)
	}
	return s
}

func enterQuantity(v Variant, s State, qty float64) State {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		s.Error = &Failure{
			Kind:    ErrorKindInvalidInput,
			Code:    CodeInvalidQuantity,
			Message: "quantity must be greater than zero",
		}
		return s
	}

	s.Warnings = warningsBefore(v, s.Warnings, PhaseEnterQuantity)
	s.Quantity = &qty
	s.Error = nil

	rule := v.quantity
	if rule.limit != nil {
		if limit, ok := rule.limit(s); ok {
			switch {
			case qty > limit && rule.over != "":
				s.Warnings = append(s.Warnings, Warning{
					Kind:    rule.over,
					Message: fmt.Sprintf("quantity %s exceeds expected %s by %s", formatQty(qty), formatQty(limit), formatQty(qty-limit)),
					Phase:   PhaseEnterQuantity,
				})
			case qty < limit && rule.under != "":
				s.Warnings = append(s.Warnings, Warning{
					Kind:    rule.under,
					Message: fmt.Sprintf("quantity %s is %s short of expected %s", formatQty(qty), formatQty(limit-qty), formatQty(limit)),
					Phase:   PhaseEnterQuantity,
				})
			}
		}
	}

	s.Phase = mustNext(v, PhaseEnterQuantity)
	return s
}

func formatQty(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func clearDestination(s *State) {
	s.Destination = nil
	s.Override = false
	s.OverrideReason = ""
	s.Warnings = dropWarnings(s.Warnings, PhaseScanDestination)
}

// clearFrom drops the data owned by target and every later phase.
func clearFrom(v Variant, s *State, target Phase) {
	for _, p := range v.phases {
		if p != target && !v.Before(target, p) {
			continue
		}
		switch p {
		case PhaseScanSource:
			s.Source = nil
			s.Suggestion = nil
			s.SuggestionStatus = SuggestionStatusNone
		case PhaseScanDestination:
			clearDestination(s)
		case PhaseEnterQuantity:
			s.Quantity = nil
		case PhaseConfirm:
			s.SubmissionKey = ""
		}
		s.Warnings = dropWarnings(s.Warnings, p)
	}
}

func dropWarnings(ws []Warning, phase Phase) []Warning {
	var out []Warning
	for _, w := range ws {
		if w.Phase != phase {
			out = append(out, w)
		}
	}
	return out
}

// warningsBefore keeps warnings raised strictly before phase.
func warningsBefore(v Variant, ws []Warning, phase Phase) []Warning {
	var out []Warning
	for _, w := range ws {
		if v.Before(w.Phase, phase) {
			out = append(out, w)
		}
	}
	return out
}
