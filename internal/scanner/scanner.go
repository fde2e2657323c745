// Package scanner implements the LAN subnet scanner: probe all 254
// addresses of the host's private /24 in batches of 32, waiting for each
// batch to fully resolve before starting the next.
package scanner

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/printbridge/agent/internal/model"
)

// ProbeTimeout is the per-address connect budget.
const ProbeTimeout = 180 * time.Millisecond

// BatchSize bounds concurrent in-flight probes, keeping file-descriptor
// pressure predictable during a full-subnet scan.
const BatchSize = 32

// LocalIPv4 returns the host's first private-range IPv4 address, falling
// back to the first non-loopback IPv4 address if none is private. Fails
// with a KindNoLocalIPv4 TransportError if the host has no usable IPv4 address at all.
func LocalIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, model.NewTransportError(model.KindNoLocalIPv4, err)
	}

	var fallback net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		if fallback == nil {
			fallback = ip4
		}
		if isPrivate(ip4) {
			return ip4, nil
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, model.NewTransportError(model.KindNoLocalIPv4, nil)
}

func isPrivate(ip net.IP) bool {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, block, _ := net.ParseCIDR(cidr)
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// Scan probes prefix.1 through prefix.254 on port, BatchSize at a time, and
// returns the hits in ascending address order.
func Scan(ctx context.Context, port int) (model.ScanResult, error) {
	ip, err := LocalIPv4()
	if err != nil {
		return model.ScanResult{}, err
	}
	parts := strings.Split(ip.String(), ".")
	prefix := strings.Join(parts[:3], ".") + "."

	var hits []string
	for batchStart := 1; batchStart <= 254; batchStart += BatchSize {
		batchEnd := batchStart + BatchSize - 1
		if batchEnd > 254 {
			batchEnd = 254
		}
		hits = append(hits, probeBatch(ctx, prefix, batchStart, batchEnd, port)...)
	}

	return model.ScanResult{Prefix: prefix, Hits: hits}, nil
}

func probeBatch(ctx context.Context, prefix string, start, end, port int) []string {
	type result struct {
		ip string
		ok bool
	}
	results := make(chan result, end-start+1)

	for i := start; i <= end; i++ {
		ip := fmt.Sprintf("%s%d", prefix, i)
		go func(ip string) {
			results <- result{ip: ip, ok: probe(ctx, ip, port)}
		}(ip)
	}

	// Preserve ascending order within the batch regardless of completion
	// order: collect into a map keyed by IP, then walk start..end.
	ok := make(map[string]bool, end-start+1)
	for i := start; i <= end; i++ {
		r := <-results
		ok[r.ip] = r.ok
	}

	var hits []string
	for i := start; i <= end; i++ {
		ip := fmt.Sprintf("%s%d", prefix, i)
		if ok[ip] {
			hits = append(hits, ip)
		}
	}
	return hits
}

func probe(ctx context.Context, ip string, port int) bool {
	d := net.Dialer{Timeout: ProbeTimeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
