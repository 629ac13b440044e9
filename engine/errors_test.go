package engine

import (
	"fmt"
	"testing"
)

func TestCodeOfExtractsWrappedCode(t *testing.T) {
	base := newErr(CodeNoRecord, "missing")
	wrapped := fmt.Errorf("context: %w", base)
	if CodeOf(wrapped) != CodeNoRecord {
		t.Fatalf("got %v", CodeOf(wrapped))
	}
}

func TestCodeOfNilAndForeign(t *testing.T) {
	if CodeOf(nil) != CodeNone {
		t.Fatal("expected CodeNone for nil error")
	}
	if CodeOf(fmt.Errorf("plain")) != CodeMisc {
		t.Fatal("expected CodeMisc for a non-taxonomy error")
	}
}

func TestErrorStringIncludesMessage(t *testing.T) {
	e := newErr(CodeInvalid, "bad thing")
	if e.Error() != "invalid: bad thing" {
		t.Fatalf("got %q", e.Error())
	}
}
