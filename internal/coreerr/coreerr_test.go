package coreerr

import (
	"errors"
	"testing"
)

func TestOfWrapped(t *testing.T) {
	base := New(Timeout, "fetchEventConfig", "no REPORT within 5s")
	wrapped := errors.New("context: " + base.Error())
	if Of(base) != Timeout {
		t.Fatalf("expected Timeout, got %v", Of(base))
	}
	if Of(wrapped) != Protocol {
		t.Fatalf("plain error should default to Protocol, got %v", Of(wrapped))
	}
}

func TestIsWalksUnwrap(t *testing.T) {
	cause := New(Write, "link.write", "broken pipe")
	outer := Wrap(Connection, "link.open", "cannot reopen", cause)
	if !Is(outer, Connection) {
		t.Fatal("expected outer Kind to match Connection")
	}
	if !Is(outer, Write) {
		t.Fatal("expected Is to walk Unwrap chain to Write")
	}
	if Is(outer, Timeout) {
		t.Fatal("did not expect Timeout to match")
	}
}

func TestValidationErrAggregates(t *testing.T) {
	var v ValidationErr
	if v.HasErrors() {
		t.Fatal("empty ValidationErr should report no errors")
	}
	v.Add("BU16(0,0)/page-0/element-3/press", "unsupported event for element type")
	v.Add("BU16(0,0)/page-0/element-5/turn", "duplicate (page,element,event) triple")
	if !v.HasErrors() {
		t.Fatal("expected errors after Add")
	}
	if Of(&v) != Validation {
		t.Fatalf("expected Validation kind, got %v", Of(&v))
	}
}
