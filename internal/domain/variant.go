package domain

import (
	"fmt"
	"strings"
)

// Phase is a step of a guided scanner workflow.
type Phase string

const (
	PhaseScanSource      Phase = "scan_source"
	PhaseViewSuggestion  Phase = "view_suggestion"
	PhaseScanDestination Phase = "scan_destination"
	PhaseEnterQuantity   Phase = "enter_quantity"
	PhaseConfirm         Phase = "confirm"
	PhaseSubmitting      Phase = "submitting"
	PhaseSuccess         Phase = "success"
)

// Operation identifies a scanner operation family.
type Operation string

const (
	OperationReceive Operation = "receive"
	OperationPutaway Operation = "putaway"
	OperationMove    Operation = "move"
	OperationConsume Operation = "consume"
	OperationOutput  Operation = "output"
	OperationPick    Operation = "pick"
	OperationPack    Operation = "pack"
)

// Operations lists every supported operation.
var Operations = []Operation{
	OperationReceive,
	OperationPutaway,
	OperationMove,
	OperationConsume,
	OperationOutput,
	OperationPick,
	OperationPack,
}

// ParseOperation accepts the canonical names plus "produce" for output.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if op == "produce" {
		op = OperationOutput
	}
	if _, ok := variants[op]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return op, nil
}

// quantityRule derives the limit a captured quantity is checked against.
type quantityRule struct {
	// limit returns the expected quantity and whether one is known.
	limit func(s State) (float64, bool)
	// over is the warning raised when the quantity exceeds the limit.
	over WarningKind
	// under is raised when the quantity is below the limit. Empty disables it.
	under WarningKind
}

// Variant describes one operation family: its ordered phases and policies.
type Variant struct {
	Operation Operation
	phases    []Phase
	quantity  quantityRule
	// rejectSameLocation refuses a destination equal to the source's
	// current location.
	rejectSameLocation bool
}

var terminalPhases = []Phase{PhaseConfirm, PhaseSubmitting, PhaseSuccess}

func newVariant(op Operation, lead []Phase, q quantityRule, rejectSame bool) Variant {
	phases := append([]Phase{PhaseScanSource}, lead...)
	phases = append(phases, terminalPhases...)
	return Variant{Operation: op, phases: phases, quantity: q, rejectSameLocation: rejectSame}
}

func sourceRemaining(s State) (float64, bool) {
	if s.Source == nil || s.Source.RemainingQty == nil {
		return 0, false
	}
	return *s.Source.RemainingQty, true
}

func sourceAvailable(s State) (float64, bool) {
	if s.Source == nil || s.Source.AvailableQty == nil {
		return 0, false
	}
	return *s.Source.AvailableQty, true
}

func destinationRemainingOrSourceAvailable(s State) (float64, bool) {
	if s.Destination != nil && s.Destination.RemainingQty != nil {
		return *s.Destination.RemainingQty, true
	}
	return sourceAvailable(s)
}

var variants = map[Operation]Variant{
	OperationReceive: newVariant(OperationReceive,
		[]Phase{PhaseEnterQuantity, PhaseScanDestination},
		quantityRule{limit: sourceRemaining, over: WarningOverReceipt}, false),
	OperationPutaway: newVariant(OperationPutaway,
		[]Phase{PhaseViewSuggestion, PhaseScanDestination},
		quantityRule{}, true),
	OperationMove: newVariant(OperationMove,
		[]Phase{PhaseScanDestination},
		quantityRule{}, true),
	OperationConsume: newVariant(OperationConsume,
		[]Phase{PhaseScanDestination, PhaseEnterQuantity},
		quantityRule{limit: destinationRemainingOrSourceAvailable, over: WarningOverConsumption}, false),
	OperationOutput: newVariant(OperationOutput,
		[]Phase{PhaseEnterQuantity, PhaseScanDestination},
		quantityRule{limit: sourceRemaining, over: WarningOverProduction}, false),
	OperationPick: newVariant(OperationPick,
		[]Phase{PhaseViewSuggestion, PhaseScanDestination, PhaseEnterQuantity},
		quantityRule{limit: sourceRemaining, over: WarningOverPick, under: WarningShortPick}, false),
	OperationPack: newVariant(OperationPack,
		[]Phase{PhaseViewSuggestion, PhaseScanDestination, PhaseEnterQuantity},
		quantityRule{limit: sourceAvailable, over: WarningExceedsAvailable}, false),
}

// VariantFor returns the workflow variant of op.
func VariantFor(op Operation) (Variant, error) {
	v, ok := variants[op]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return v, nil
}

// Phases returns a copy of the ordered phase sequence.
func (v Variant) Phases() []Phase {
	return append([]Phase(nil), v.phases...)
}

func (v Variant) index(p Phase) int {
	for i, candidate := range v.phases {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Has reports whether p is part of this variant.
func (v Variant) Has(p Phase) bool {
	return v.index(p) >= 0
}

// Next returns the phase after p.
func (v Variant) Next(p Phase) (Phase, bool) {
	i := v.index(p)
	if i < 0 || i == len(v.phases)-1 {
		return "", false
	}
	return v.phases[i+1], true
}

// Previous returns the phase before p.
func (v Variant) Previous(p Phase) (Phase, bool) {
	i := v.index(p)
	if i <= 0 {
		return "", false
	}
	return v.phases[i-1], true
}

// Before reports whether a strictly precedes b in the sequence.
func (v Variant) Before(a, b Phase) bool {
	ia, ib := v.index(a), v.index(b)
	return ia >= 0 && ib >= 0 && ia < ib
}

// HasSuggestion reports whether the variant shows a suggestion step.
func (v Variant) HasSuggestion() bool {
	return v.Has(PhaseViewSuggestion)
}

// CapturesQuantity reports whether the variant asks for a quantity.
func (v Variant) CapturesQuantity() bool {
	return v.Has(PhaseEnterQuantity)
}
