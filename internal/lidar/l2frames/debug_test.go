package l2frames

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters_Streams(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(&buf, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	if opsLogger == nil {
		t.Fatal("opsLogger should be non-nil after SetLogWriters with a writer")
	}
	if diagLogger != nil || traceLogger != nil {
		t.Fatal("diag and trace loggers should be nil when passed nil writers")
	}

	opsf("hello %s %d", "world", 42)
	output := buf.String()
	if !strings.Contains(output, "hello world 42") {
		t.Errorf("expected output to contain 'hello world 42', got %q", output)
	}
	if !strings.Contains(output, "[l2frames]") {
		t.Errorf("expected output to contain '[l2frames]' prefix, got %q", output)
	}
}

func TestSetDebugLogger(t *testing.T) {
	var buf bytes.Buffer
	SetDebugLogger(&buf)
	defer SetLogWriters(nil, nil, nil)

	if diagLogger == nil || traceLogger == nil {
		t.Fatal("SetDebugLogger should enable diag and trace")
	}
	if opsLogger != nil {
		t.Fatal("SetDebugLogger should leave ops untouched")
	}

	SetDebugLogger(nil)
	if diagLogger != nil || traceLogger != nil {
		t.Fatal("SetDebugLogger(nil) should disable diag and trace")
	}
}

func TestLogging_NilLoggersDoNotPanic(t *testing.T) {
	SetLogWriters(nil, nil, nil)
	opsf("discarded %d", 1)
	diagf("discarded %d", 2)
	tracef("discarded %d", 3)
}

func TestAssembler_LogsWatchdogOnOps(t *testing.T) {
	var ops, trace bytes.Buffer
	SetLogWriters(&ops, nil, &trace)
	defer SetLogWriters(nil, nil, nil)

	a := NewAssembler(AssemblerConfig{})
	pkt := packetAt(1800, 10000, 10860)
	for i := 0; i < 100; i++ {
		a.AddPacket(pkt)
		a.Assemble()
	}
	if !strings.Contains(ops.String(), "no revolution boundary") {
		t.Errorf("expected watchdog warning on ops stream, got %q", ops.String())
	}

	a.AddPacket(packetAt(1800, 1000, 9000))
	if !strings.Contains(trace.String(), "gate:") {
		t.Errorf("expected gate rejection on trace stream, got %q", trace.String())
	}
}
