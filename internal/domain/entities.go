package domain

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// ScannedEntity is the resolved source of an operation: a license plate,
// purchase order line, work order or pick line depending on the variant.
type ScannedEntity struct {
	ID           string     `json:"id" bson:"id"`
	Code         string     `json:"code" bson:"code"`
	Description  string     `json:"description,omitempty" bson:"description,omitempty"`
	ItemCode     string     `json:"itemCode,omitempty" bson:"itemCode,omitempty"`
	LocationID   string     `json:"locationId,omitempty" bson:"locationId,omitempty"`
	LocationCode string     `json:"locationCode,omitempty" bson:"locationCode,omitempty"`
	Lot          string     `json:"lot,omitempty" bson:"lot,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty" bson:"expiry,omitempty"`
	Status       string     `json:"status,omitempty" bson:"status,omitempty"`
	Quantity     float64    `json:"quantity,omitempty" bson:"quantity,omitempty"`
	UoM          string     `json:"uom,omitempty" bson:"uom,omitempty"`
	// AvailableQty is what can physically be taken from the source.
	AvailableQty *float64 `json:"availableQty,omitempty" bson:"availableQty,omitempty"`
	// RemainingQty is what the source document still expects.
	RemainingQty *float64 `json:"remainingQty,omitempty" bson:"remainingQty,omitempty"`
}

// DestinationEntity is the resolved target: a location, box or work order
// material line.
type DestinationEntity struct {
	ID         string `json:"id" bson:"id"`
	Code       string `json:"code" bson:"code"`
	Name       string `json:"name,omitempty" bson:"name,omitempty"`
	Zone       string `json:"zone,omitempty" bson:"zone,omitempty"`
	AtCapacity bool   `json:"atCapacity,omitempty" bson:"atCapacity,omitempty"`
	// RemainingQty is the quantity the destination still accepts, if bounded.
	RemainingQty *float64 `json:"remainingQty,omitempty" bson:"remainingQty,omitempty"`
}

// Alternative is a secondary target offered with a suggestion.
type Alternative struct {
	TargetID   string `json:"targetId" bson:"targetId"`
	TargetCode string `json:"targetCode" bson:"targetCode"`
	Reason     string `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Suggestion is the backend's recommended destination.
type Suggestion struct {
	TargetID     string        `json:"targetId" bson:"targetId"`
	TargetCode   string        `json:"targetCode" bson:"targetCode"`
	Reason       string        `json:"reason,omitempty" bson:"reason,omitempty"`
	ReasonCode   string        `json:"reasonCode,omitempty" bson:"reasonCode,omitempty"`
	Strategy     string        `json:"strategy,omitempty" bson:"strategy,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty" bson:"alternatives,omitempty"`
}

// Matches reports whether d is the suggested target. Identity is the id.
func (d DestinationEntity) Matches(s Suggestion) bool {
	return d.ID == s.TargetID
}

// Mismatch describes a scanned destination that differs from the suggestion.
type Mismatch struct {
	SuggestedID   string `json:"suggestedId"`
	SuggestedCode string `json:"suggestedCode"`
	ScannedID     string `json:"scannedId"`
	ScannedCode   string `json:"scannedCode"`
	// IsAlternative is set when the scan is one of the listed alternatives.
	IsAlternative bool `json:"isAlternative"`
	// NearMiss is set when the codes differ by a single character, which
	// usually means the neighbouring label was scanned.
	NearMiss bool `json:"nearMiss"`
}

func newMismatch(s Suggestion, d DestinationEntity) Mismatch {
	m := Mismatch{
		SuggestedID:   s.TargetID,
		SuggestedCode: s.TargetCode,
		ScannedID:     d.ID,
		ScannedCode:   d.Code,
	}
	for _, alt := range s.Alternatives {
		if alt.TargetID == d.ID {
			m.IsAlternative = true
			break
		}
	}
	if s.TargetCode != "" && d.Code != "" {
		a, b := strings.ToUpper(s.TargetCode), strings.ToUpper(d.Code)
		m.NearMiss = levenshtein.ComputeDistance(a, b) == 1
	}
	return m
}

// Result is the terminal payload of a successful submission.
type Result struct {
	Reference string             `json:"reference,omitempty" bson:"reference,omitempty"`
	Records   []RecordRef        `json:"records,omitempty" bson:"records,omitempty"`
	Counters  map[string]float64 `json:"counters,omitempty" bson:"counters,omitempty"`
}

// RecordRef points at a record the backend created.
type RecordRef struct {
	Type   string `json:"type" bson:"type"`
	ID     string `json:"id" bson:"id"`
	Number string `json:"number,omitempty" bson:"number,omitempty"`
}

// WarningKind classifies a non-fatal condition.
type WarningKind string

const (
	WarningOverReceipt      WarningKind = "over_receipt"
	WarningOverProduction   WarningKind = "over_production"
	WarningOverConsumption  WarningKind = "over_consumption"
	WarningOverPick         WarningKind = "over_pick"
	WarningShortPick        WarningKind = "short_pick"
	WarningExceedsAvailable WarningKind = "exceeds_available"
	WarningAtCapacity       WarningKind = "destination_at_capacity"
)

// Warning is a non-fatal condition the operator must see but may proceed past.
type Warning struct {
	Kind    WarningKind `json:"kind" bson:"kind"`
	Message string      `json:"message" bson:"message"`
	// Phase is the phase that raised the warning; going back to it or
	// earlier clears the warning.
	Phase Phase `json:"phase" bson:"phase"`
}
