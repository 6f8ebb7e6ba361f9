package bluetooth

import (
	"context"
	"iter"
)

// RawEvent is one advertisement as delivered by a host stack, before
// normalization. Ordered slices preserve the order the stack reported.
type RawEvent struct {
	Address          string
	LocalName        *string
	ManufacturerData []ManufacturerEntry
	ServiceUUIDs     []string
	ServiceData      []ServiceDataEntry
	TxPower          *int
	RSSI             *int

	// Platform is the backend-specific payload; it is retained, never parsed.
	Platform any
	// AdvBytes is the raw advertising PDU when the stack exposes it.
	AdvBytes []byte
}

// ManufacturerEntry is one manufacturer-specific data element. CompanyID is
// an int so that out-of-range identifiers from a backend are caught by the
// decoder rather than silently truncated.
type ManufacturerEntry struct {
	CompanyID int    `json:"company_id"`
	Data      []byte `json:"data"`
}

type ServiceDataEntry struct {
	UUID string `json:"uuid"`
	Data []byte `json:"data"`
}

// ScanHandle controls a running callback-mode scan.
type ScanHandle interface {
	// Stop ends the scan and returns once the stack will deliver no further
	// callbacks.
	Stop() error
	// Done is closed when the scan ends, on Stop or on its own.
	Done() <-chan struct{}
	// Err reports why the scan ended on its own; nil after a clean Stop.
	Err() error
}

// CallbackSource pushes events from the host stack's own context.
type CallbackSource interface {
	Name() string
	Start(ctx context.Context, emit func(RawEvent)) (ScanHandle, error)
}

// PullSource exposes events as an asynchronous sequence. The sequence ends
// when ctx is cancelled; a non-nil error as the final element is terminal.
type PullSource interface {
	Name() string
	Events(ctx context.Context) iter.Seq2[RawEvent, error]
}
