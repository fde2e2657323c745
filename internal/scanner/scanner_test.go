package scanner_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printbridge/agent/internal/scanner"
)

// TestScan_CompletesWithWellFormedResult runs a full batched scan of the
// host's /24 on the port of a loopback listener, since the test host cannot
// be guaranteed a responder on its private /24. The listener lies outside
// the scanned prefix, so it checks only that the scan completes without
// error and reports a prefix; LocalIPv4 detection is covered separately.
func TestScan_CompletesWithWellFormedResult(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	result, err := scanner.Scan(context.Background(), addr.Port)
	require.NoError(t, err)
	// Every address scanned is on a different host than the listener, so
	// in a clean test sandbox hits should be empty; the scan must still
	// complete and return a well-formed result without error.
	assert.NotEmpty(t, result.Prefix)
}

func TestLocalIPv4_ReturnsAnAddress(t *testing.T) {
	ip, err := scanner.LocalIPv4()
	require.NoError(t, err)
	assert.NotNil(t, ip.To4())
}
