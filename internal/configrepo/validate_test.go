package configrepo

import (
	"testing"

	"gridctl/internal/coreerr"
	"gridctl/internal/domain"
)

func TestValidatePush_Clean(t *testing.T) {
	module := testModule(0, 0, 1)
	cfg := domain.ModuleConfig{Module: module, Pages: []domain.PageConfig{{Page: 0, Events: fullEvents(module, nil)}}}
	if err := ValidatePush([]domain.ModuleConfig{cfg}); err != nil {
		t.Fatalf("unexpected error on clean config: %v", err)
	}
}

func TestValidatePush_UnknownEventAggregates(t *testing.T) {
	module := testModule(0, 0, 1)
	cfg := domain.ModuleConfig{
		Module: module,
		Pages: []domain.PageConfig{{Page: 0, Events: []domain.EventConfig{
			{Element: 0, EventType: "not-a-real-event", Actions: nil},
			{Element: 0, EventType: "also-bad", Actions: nil},
		}}},
	}
	err := ValidatePush([]domain.ModuleConfig{cfg})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if coreerr.Of(err) != coreerr.Validation {
		t.Fatalf("expected Validation kind, got %v", coreerr.Of(err))
	}
	verr, ok := err.(*coreerr.ValidationErr)
	if !ok {
		t.Fatalf("expected *coreerr.ValidationErr, got %T", err)
	}
	if len(verr.Diags) != 2 {
		t.Fatalf("expected both bad events reported, got %d diags: %+v", len(verr.Diags), verr.Diags)
	}
}

func TestValidatePush_DuplicateBindingRejected(t *testing.T) {
	module := testModule(0, 0, 1)
	cfg := domain.ModuleConfig{
		Module: module,
		Pages: []domain.PageConfig{{Page: 0, Events: []domain.EventConfig{
			{Element: 0, EventType: "init", Actions: nil},
			{Element: 0, EventType: "init", Actions: []domain.Action{{Short: "x", Script: "y()"}}},
		}}},
	}
	err := ValidatePush([]domain.ModuleConfig{cfg})
	if err == nil {
		t.Fatal("expected a validation error for duplicate binding")
	}
}
