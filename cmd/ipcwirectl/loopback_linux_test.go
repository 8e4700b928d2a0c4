//go:build linux

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/ipcwire/internal/testutil/testlog"
)

func TestLoopbackPrintsMessage(t *testing.T) {
	testlog.Start(t)
	t.Setenv("IPCWIRE_TRANSPORT", "unix")
	var out bytes.Buffer
	if err := run([]string{"loopback", "-id", "42", "-metrics"}, &out); err != nil {
		t.Fatalf("loopback: %v", err)
	}
	got := out.String()
	for _, want := range []string{"id=42", `"op": (string) "status"`, "ipcwire_pipe_frames_sent_total"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}
