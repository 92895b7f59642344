package elements

import "testing"

func TestLookupFullValueFirst(t *testing.T) {
	// Button.id (1) is a key of ByID itself, so the full-value lookup
	// resolves it without the masked fallback.
	ty, ok := Lookup(Button.id)
	if !ok || ty.Name() != "BU16" {
		t.Fatalf("expected full-value lookup to resolve BU16, got %+v ok=%v", ty, ok)
	}
}

func TestLookupFallsBackToMasked(t *testing.T) {
	// 0x81 has no full-value entry but masks to Button.id (1).
	ty, ok := Lookup(0x80 | Button.id)
	if !ok || ty.Name() != "BU16" {
		t.Fatalf("expected masked lookup to resolve BU16, got %+v ok=%v", ty, ok)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup(0x7F); ok {
		t.Fatal("expected no match for an unused hwcfg value")
	}
}

func TestSupportsAndCodeRoundTrip(t *testing.T) {
	if !Button.Supports(Press) {
		t.Fatal("button should support press")
	}
	if Button.Supports(Draw) {
		t.Fatal("button should not support draw")
	}
	code, ok := Button.Code(Press)
	if !ok {
		t.Fatal("expected press to resolve a code")
	}
	kind, ok := Button.KindForCode(code)
	if !ok || kind != Press {
		t.Fatalf("expected code round-trip back to Press, got %v ok=%v", kind, ok)
	}
}

func TestDefaultConfigDistinguishesSupport(t *testing.T) {
	if _, _, supported := Button.DefaultConfig(Draw); supported {
		t.Fatal("button does not support draw at all")
	}
	actions, hasDefault, supported := Button.DefaultConfig(Init)
	if !supported || !hasDefault {
		t.Fatalf("expected init to be supported with a (possibly empty) default, got actions=%v hasDefault=%v", actions, hasDefault)
	}
}
