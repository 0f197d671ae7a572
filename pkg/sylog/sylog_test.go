package sylog

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	old := SetWriter(&buf)
	defer SetWriter(old)
	oldLevel := GetLevel()
	defer SetLevel(oldLevel)

	SetLevel(int(WarnLevel))
	Infof("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected Infof to be suppressed at WarnLevel, got %q", buf.String())
	}

	Warningf("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected Warningf output, got %q", buf.String())
	}
}

func TestWriterDiscardsBelowLogLevel(t *testing.T) {
	oldLevel := GetLevel()
	defer SetLevel(oldLevel)

	SetLevel(int(ErrorLevel))
	if Writer() == nil {
		t.Fatalf("Writer should never return nil")
	}
	if Writer() != io.Discard {
		t.Fatalf("expected Writer to discard at ErrorLevel")
	}
}

func TestGetEnvVarRoundTrip(t *testing.T) {
	oldLevel := GetLevel()
	defer SetLevel(oldLevel)

	SetLevel(int(DebugLevel))
	got := GetEnvVar()
	if !strings.HasPrefix(got, "CIRCE_MESSAGELEVEL=") {
		t.Fatalf("GetEnvVar() = %q, want CIRCE_MESSAGELEVEL= prefix", got)
	}
	if l, err := strconv.Atoi(strings.TrimPrefix(got, "CIRCE_MESSAGELEVEL=")); err != nil || l != int(DebugLevel) {
		t.Fatalf("GetEnvVar() = %q does not parse back to level %d", got, int(DebugLevel))
	}
}
