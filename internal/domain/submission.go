package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxBarcodeLength is the longest scan code accepted.
const MaxBarcodeLength = 100

// MaxOverrideReasonLength bounds the free-text override reason.
const MaxOverrideReasonLength = 500

// NormalizeBarcode trims a raw scan and validates it: non-empty, at most
// MaxBarcodeLength characters, printable only.
func NormalizeBarcode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", fmt.Errorf("%w: empty scan", ErrInvalidBarcode)
	}
	if utf8.RuneCountInString(code) > MaxBarcodeLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidBarcode, MaxBarcodeLength)
	}
	for _, r := range code {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: contains non-printable characters", ErrInvalidBarcode)
		}
	}
	return code, nil
}

// Submission is the payload sent to the backend when an operation is
// confirmed. It carries only identifiers and captured values.
type Submission struct {
	Key             string    `json:"submissionKey"`
	Operation       Operation `json:"operation"`
	SourceID        string    `json:"sourceId"`
	SourceCode      string    `json:"sourceCode"`
	DestinationID   string    `json:"destinationId,omitempty"`
	DestinationCode string    `json:"destinationCode,omitempty"`
	// SuggestedDestinationID is set whenever a suggestion existed.
	SuggestedDestinationID string   `json:"suggestedDestinationId,omitempty"`
	Override               bool     `json:"override"`
	OverrideReason         string   `json:"overrideReason,omitempty"`
	Quantity               *float64 `json:"quantity,omitempty"`
	UoM                    string   `json:"uom,omitempty"`
}

// BuildSubmission derives the payload from a confirmed or submitting state.
// The override flag is derived from the destination and suggestion rather
// than copied, so a deviation can never be submitted unflagged.
func BuildSubmission(s State) (Submission, error) {
	if s.Phase != PhaseConfirm && s.Phase != PhaseSubmitting {
		return Submission{}, fmt.Errorf("%w: phase %s", ErrNotSubmittable, s.Phase)
	}
	if s.Source == nil {
		return Submission{}, fmt.Errorf("%w: no source", ErrNotSubmittable)
	}
	if _, pending := s.Mismatch(); pending {
		return Submission{}, fmt.Errorf("%w: unresolved destination mismatch", ErrNotSubmittable)
	}

	sub := Submission{
		Key:        s.SubmissionKey,
		Operation:  s.Operation,
		SourceID:   s.Source.ID,
		SourceCode: s.Source.Code,
		Quantity:   cloneFloat(s.Quantity),
		UoM:        s.Source.UoM,
	}
	if s.Destination != nil {
		sub.DestinationID = s.Destination.ID
		sub.DestinationCode = s.Destination.Code
	}
	if s.Suggestion != nil {
		sub.SuggestedDestinationID = s.Suggestion.TargetID
	}
	if s.Deviates() {
		sub.Override = true
		sub.OverrideReason = s.OverrideReason
	}
	return sub, nil
}
