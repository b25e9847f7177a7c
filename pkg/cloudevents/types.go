package cloudevents

import (
	"time"
)

// Event types emitted by scanner sessions
const (
	ScannerOperationCompleted    = "wms.scanner.operation-completed"
	ScannerDestinationOverridden = "wms.scanner.destination-overridden"
	ScannerSubmissionFailed      = "wms.scanner.submission-failed"
)

// SourceScanner is the CloudEvents source of this service.
const SourceScanner = "/wms/scanner-service"

// WMSCloudEvent represents a CloudEvents v1.0 compliant event for WMS
type WMSCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	SessionID     string `json:"wmssessionid,omitempty"`
	DeviceID      string `json:"wmsdeviceid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}

// OperationCompletedData is the payload of ScannerOperationCompleted.
type OperationCompletedData struct {
	SessionID       string             `json:"sessionId"`
	Operation       string             `json:"operation"`
	SubmissionKey   string             `json:"submissionKey"`
	SourceID        string             `json:"sourceId"`
	SourceCode      string             `json:"sourceCode"`
	DestinationID   string             `json:"destinationId,omitempty"`
	DestinationCode string             `json:"destinationCode,omitempty"`
	Quantity        *float64           `json:"quantity,omitempty"`
	UoM             string             `json:"uom,omitempty"`
	Override        bool               `json:"override"`
	Reference       string             `json:"reference,omitempty"`
	Counters        map[string]float64 `json:"counters,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	CompletedAt     time.Time          `json:"completedAt"`
}

// DestinationOverriddenData records an operator choosing a destination other
// than the suggested one.
type DestinationOverriddenData struct {
	SessionID              string    `json:"sessionId"`
	Operation              string    `json:"operation"`
	OperatorID             string    `json:"operatorId,omitempty"`
	SourceID               string    `json:"sourceId"`
	SuggestedDestinationID string    `json:"suggestedDestinationId"`
	ChosenDestinationID    string    `json:"chosenDestinationId"`
	Reason                 string    `json:"reason,omitempty"`
	OverriddenAt           time.Time `json:"overriddenAt"`
}

// SubmissionFailedData is the payload of ScannerSubmissionFailed.
type SubmissionFailedData struct {
	SessionID     string `json:"sessionId"`
	Operation     string `json:"operation"`
	SubmissionKey string `json:"submissionKey"`
	ErrorKind     string `json:"errorKind"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Message       string `json:"message"`
}
