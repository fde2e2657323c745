package model

import "time"

// JobStatus is the remote-store status field driving the claim/retry state
// machine.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobPrinting JobStatus = "printing"
	JobPrinted  JobStatus = "printed"
	JobFailed   JobStatus = "failed"
)

// TargetKind tags the destination a print job routes to.
type TargetKind string

const (
	TargetLAN       TargetKind = "lan"
	TargetOSPrinter TargetKind = "osPrinter"
)

// JobTarget is the tagged destination record embedded in a Job. Only the
// fields relevant to Kind are populated; unrecognized Kind values are
// preserved verbatim so the dispatcher can report unknown_target without
// losing the original string for logging.
type JobTarget struct {
	Kind TargetKind `json:"type"`

	// lan
	IP   string `json:"ip,omitempty"`
	Port int    `json:"port,omitempty"`

	// osPrinter
	PrinterName string `json:"printerName,omitempty"`
}

// DefaultLANPort is applied when a lan target omits port.
const DefaultLANPort = 9100

// Job is a cloud print job record.
type Job struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Target      JobTarget `json:"target"`
	Payload     []byte    `json:"-"`
	PaperWidth  int       `json:"paperWidth,omitempty"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	OrderID     string    `json:"orderId,omitempty"`
	Error       string    `json:"error,omitempty"`

	ClaimedBy     string    `json:"claimedBy,omitempty"`
	ClaimedByName string    `json:"claimedByName,omitempty"`
	ClaimedAt     time.Time `json:"claimedAt,omitempty"`
	PrintedAt     time.Time `json:"printedAt,omitempty"`
}

// DefaultMaxAttempts is used when a job document omits maxAttempts.
const DefaultMaxAttempts = 3

// Terminal reports whether this job's status admits no further mutation
// from this bridge.
func (j Job) Terminal() bool {
	return j.Status == JobPrinted || j.Status == JobFailed
}
