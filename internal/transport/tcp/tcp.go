// Package tcp implements the raw TCP printer transport: open a connection
// to a network printer, write the payload, close — on every exit path,
// with no partial-write recovery. Dial and write failures are classified
// into a small taxonomy of error kinds instead of being returned as a bare
// wrapped error, so callers can branch on cause without string matching.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/printbridge/agent/internal/model"
)

// ConnectTimeout bounds both the dial and the write.
const ConnectTimeout = 5 * time.Second

// Print opens a TCP connection to ip:port, writes payload in full, and
// closes the connection. Exactly one connection is opened and closed per
// call regardless of outcome.
func Print(ctx context.Context, ip string, port int, payload []byte) error {
	addr := fmt.Sprintf("%s:%d", ip, port)

	d := net.Dialer{Timeout: ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyDialError(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(ConnectTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return model.NewTransportError(model.KindIOError, err)
	}

	if _, err := conn.Write(payload); err != nil {
		return classifyWriteError(err)
	}
	return nil
}

func classifyDialError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewTransportError(model.KindConnectTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.NewTransportError(model.KindConnectRefused, err)
	}
	return model.NewTransportError(model.KindIOError, err)
}

func classifyWriteError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewTransportError(model.KindConnectTimeout, err)
	}
	return model.NewTransportError(model.KindIOError, err)
}
