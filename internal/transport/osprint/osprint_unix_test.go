//go:build !windows

package osprint

import "testing"

func TestTranslateState(t *testing.T) {
	cases := map[string]string{
		"idle":     "Ready",
		"printing": "Printing",
		"stopped":  "Unknown",
	}
	for in, want := range cases {
		if got := translateState(in); got != want {
			t.Errorf("translateState(%q) = %q, want %q", in, got, want)
		}
	}
}
