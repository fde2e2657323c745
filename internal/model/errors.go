package model

import "fmt"

// Kind is a taxonomy tag for transport and dispatch failures.
// Kinds are compared by value, not by type, so callers can render them
// directly into a WebSocket reply or a job's error field.
type Kind string

const (
	KindConnectTimeout    Kind = "connect_timeout"
	KindConnectRefused    Kind = "connect_refused"
	KindIOError           Kind = "io_error"
	KindNoLocalIPv4       Kind = "no_local_ipv4"
	KindUnsupported       Kind = "unsupported"
	KindOSPrintError      Kind = "os_print_error"
	KindLibusbUnavailable Kind = "libusb_unavailable"
	KindDeviceNotFound    Kind = "device_not_found"
	KindDeviceBusy        Kind = "device_busy"
	KindClaimFailed       Kind = "claim_failed"
	KindBulkTransferError Kind = "bulk_transfer_error"
	KindPartialTransfer   Kind = "partial_transfer"
	KindConfigWriteError  Kind = "config_write_error"
	KindNoLanIP           Kind = "no_lan_ip"
	KindNoPrinterName     Kind = "no_printer_name"
	KindUnknownTarget     Kind = "unknown_target"
)

// TransportError carries one of the Kind taxonomy values alongside the
// underlying cause, so transports can be tested against the Kind while
// still supporting errors.Is/errors.As against the wrapped cause.
type TransportError struct {
	Kind Kind
	Err  error

	// Written/Total are only meaningful for KindPartialTransfer.
	Written int
	Total   int
}

func (e *TransportError) Error() string {
	if e.Kind == KindPartialTransfer {
		return fmt.Sprintf("partial_transfer{written=%d,total=%d}", e.Written, e.Total)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(kind Kind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

func NewPartialTransferError(written, total int) *TransportError {
	return &TransportError{Kind: KindPartialTransfer, Written: written, Total: total}
}
