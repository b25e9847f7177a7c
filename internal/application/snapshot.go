package application

import (
	"github.com/wms-platform/scanner-service/internal/domain"
)

// Intent is an operator action on a session.
type Intent string

const (
	IntentScanItem        Intent = "scan_item"
	IntentScanDestination Intent = "scan_destination"
	IntentEnterQuantity   Intent = "enter_quantity"
	IntentProceed         Intent = "proceed"
	IntentOverride        Intent = "override"
	IntentUseSuggested    Intent = "use_suggested"
	IntentSubmit          Intent = "submit"
	IntentBack            Intent = "back"
	IntentRetry           Intent = "retry"
	IntentReset           Intent = "reset"
)

// Snapshot is the read-only view a presentation layer renders. It carries
// the state plus derived flags so clients need no workflow knowledge.
type Snapshot struct {
	SessionID        string           `json:"sessionId"`
	DeviceID         string           `json:"deviceId,omitempty"`
	OperatorID       string           `json:"operatorId,omitempty"`
	Operation        domain.Operation `json:"operation"`
	Phases           []domain.Phase   `json:"phases"`
	State            domain.State     `json:"state"`
	Mismatch         *domain.Mismatch `json:"mismatch,omitempty"`
	Warning          *domain.Warning  `json:"warning,omitempty"`
	Pending          CallKind         `json:"pending,omitempty"`
	CanRetry         bool             `json:"canRetry"`
	CanGoBack        bool             `json:"canGoBack"`
	AvailableIntents []Intent         `json:"availableIntents"`
}

func buildSnapshot(info SessionInfo, s domain.State, lastFailed *FailedCall, pending CallKind) Snapshot {
	snap := Snapshot{
		SessionID:  info.ID,
		DeviceID:   info.DeviceID,
		OperatorID: info.OperatorID,
		Operation:  s.Operation,
		State:      s.Clone(),
		Warning:    s.Warning(),
		Pending:    pending,
	}
	if v, err := domain.VariantFor(s.Operation); err == nil {
		snap.Phases = v.Phases()
	}
	if m, ok := s.Mismatch(); ok {
		snap.Mismatch = &m
	}
	snap.AvailableIntents = availableIntents(s, lastFailed)
	for _, in := range snap.AvailableIntents {
		switch in {
		case IntentRetry:
			snap.CanRetry = true
		case IntentBack:
			snap.CanGoBack = true
		}
	}
	return snap
}

// availableIntents lists the intents that would be accepted in s.
func availableIntents(s domain.State, lastFailed *FailedCall) []Intent {
	var out []Intent
	switch s.Phase {
	case domain.PhaseScanSource:
		out = append(out, IntentScanItem)
	case domain.PhaseViewSuggestion:
		if s.SuggestionStatus == domain.SuggestionStatusReady || s.SuggestionStatus == domain.SuggestionStatusUnavailable {
			out = append(out, IntentProceed)
		}
	case domain.PhaseScanDestination:
		out = append(out, IntentScanDestination)
		if _, pending := s.Mismatch(); pending {
			out = append(out, IntentOverride, IntentUseSuggested)
		}
	case domain.PhaseEnterQuantity:
		out = append(out, IntentEnterQuantity)
	case domain.PhaseConfirm:
		out = append(out, IntentSubmit)
	}

	switch s.Phase {
	case domain.PhaseScanSource, domain.PhaseSubmitting, domain.PhaseSuccess:
	default:
		out = append(out, IntentBack)
	}
	if s.Error != nil && lastFailed != nil {
		out = append(out, IntentRetry)
	}
	return append(out, IntentReset)
}

func intentAllowed(s domain.State, lastFailed *FailedCall, intent Intent) bool {
	for _, in := range availableIntents(s, lastFailed) {
		if in == intent {
			return true
		}
	}
	return false
}
