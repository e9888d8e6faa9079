package xlog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNopIsSilentAndSafe(t *testing.T) {
	log := Nop()
	if log != nil {
		t.Fatalf("Nop() must return a nil *Logger")
	}
	// None of these may panic against a nil receiver.
	ListenerFailure(log, "k", "EXPIRED", errors.New("boom"))
	LoaderFailure(log, "k", errors.New("boom"))
	ExecutorRejected(log, "maintenance", "synchronous")
}

func TestNewWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	ListenerFailure(log, "key-1", "EXPLICIT", errors.New("listener panicked"))

	out := buf.String()
	if !strings.Contains(out, "key-1") {
		t.Fatalf("log output %q missing key field", out)
	}
	if !strings.Contains(out, "EXPLICIT") {
		t.Fatalf("log output %q missing cause field", out)
	}
	if !strings.Contains(out, "removal listener failed") {
		t.Fatalf("log output %q missing message", out)
	}
}

func TestLoaderFailureLogsKeyAndError(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	LoaderFailure(log, "key-2", errors.New("load failed"))

	out := buf.String()
	if !strings.Contains(out, "key-2") || !strings.Contains(out, "load failed") {
		t.Fatalf("log output %q missing expected fields", out)
	}
}

func TestExecutorRejectedLogsPhaseAndFallback(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	ExecutorRejected(log, "refresh", "aborted")

	out := buf.String()
	if !strings.Contains(out, "refresh") || !strings.Contains(out, "aborted") {
		t.Fatalf("log output %q missing expected fields", out)
	}
}
