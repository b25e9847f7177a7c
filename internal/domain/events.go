package domain

// EventType names a workflow event.
type EventType string

const (
	EventItemScanned             EventType = "ITEM_SCANNED"
	EventItemLookupFailed        EventType = "ITEM_LOOKUP_FAILED"
	EventSuggestionReady         EventType = "SUGGESTION_READY"
	EventSuggestionUnavailable   EventType = "SUGGESTION_UNAVAILABLE"
	EventSuggestionFailed        EventType = "SUGGESTION_FAILED"
	EventProceedRequested        EventType = "PROCEED_REQUESTED"
	EventDestinationScanned      EventType = "DESTINATION_SCANNED"
	EventDestinationLookupFailed EventType = "DESTINATION_LOOKUP_FAILED"
	EventQuantityEntered         EventType = "QUANTITY_ENTERED"
	EventOverrideChosen          EventType = "OVERRIDE_CHOSEN"
	EventUseSuggestedChosen      EventType = "USE_SUGGESTED_CHOSEN"
	EventSubmitRequested         EventType = "SUBMIT_REQUESTED"
	EventSubmitSucceeded         EventType = "SUBMIT_SUCCEEDED"
	EventSubmitFailed            EventType = "SUBMIT_FAILED"
	EventBackRequested           EventType = "BACK_REQUESTED"
	EventResetRequested          EventType = "RESET_REQUESTED"
	EventRetryRequested          EventType = "RETRY_REQUESTED"
)

// Event is an input to the transition engine. The set is closed.
type Event interface {
	Type() EventType
	event()
}

type ItemScanned struct{ Item ScannedEntity }

type ItemLookupFailed struct{ Failure Failure }

type SuggestionReady struct{ Suggestion Suggestion }

// SuggestionUnavailable means the backend has no suggestion for the item.
type SuggestionUnavailable struct{ Reason string }

type SuggestionFailed struct{ Failure Failure }

// ProceedRequested moves past the suggestion screen.
type ProceedRequested struct{}

type DestinationScanned struct{ Destination DestinationEntity }

type DestinationLookupFailed struct{ Failure Failure }

type QuantityEntered struct{ Quantity float64 }

type OverrideChosen struct{ Reason string }

type UseSuggestedChosen struct{}

// SubmitRequested carries the idempotency key of the submission.
type SubmitRequested struct{ SubmissionKey string }

type SubmitSucceeded struct{ Result Result }

type SubmitFailed struct{ Failure Failure }

type BackRequested struct{}

type ResetRequested struct{}

// RetryRequested clears the current error before a failed call is re-issued.
type RetryRequested struct{}

func (ItemScanned) Type() EventType             { return EventItemScanned }
func (ItemLookupFailed) Type() EventType        { return EventItemLookupFailed }
func (SuggestionReady) Type() EventType         { return EventSuggestionReady }
func (SuggestionUnavailable) Type() EventType   { return EventSuggestionUnavailable }
func (SuggestionFailed) Type() EventType        { return EventSuggestionFailed }
func (ProceedRequested) Type() EventType        { return EventProceedRequested }
func (DestinationScanned) Type() EventType      { return EventDestinationScanned }
func (DestinationLookupFailed) Type() EventType { return EventDestinationLookupFailed }
func (QuantityEntered) Type() EventType         { return EventQuantityEntered }
func (OverrideChosen) Type() EventType          { return EventOverrideChosen }
func (UseSuggestedChosen) Type() EventType      { return EventUseSuggestedChosen }
func (SubmitRequested) Type() EventType         { return EventSubmitRequested }
func (SubmitSucceeded) Type() EventType         { return EventSubmitSucceeded }
func (SubmitFailed) Type() EventType            { return EventSubmitFailed }
func (BackRequested) Type() EventType           { return EventBackRequested }
func (ResetRequested) Type() EventType          { return EventResetRequested }
func (RetryRequested) Type() EventType          { return EventRetryRequested }

func (ItemScanned) event()             {}
func (ItemLookupFailed) event()        {}
func (SuggestionReady) event()         {}
func (SuggestionUnavailable) event()   {}
func (SuggestionFailed) event()        {}
func (ProceedRequested) event()        {}
func (DestinationScanned) event()      {}
func (DestinationLookupFailed) event() {}
func (QuantityEntered) event()         {}
func (OverrideChosen) event()          {}
func (UseSuggestedChosen) event()      {}
func (SubmitRequested) event()         {}
func (SubmitSucceeded) event()         {}
func (SubmitFailed) event()            {}
func (BackRequested) event()           {}
func (ResetRequested) event()          {}
func (RetryRequested) event()          {}
