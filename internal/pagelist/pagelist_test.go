package pagelist

import (
	"reflect"
	"testing"
)

func TestParseCommaAndRange(t *testing.T) {
	got, err := Parse("0,2-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{0, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseInvertedRangeErrors(t *testing.T) {
	if _, err := Parse("3-1"); err == nil {
		t.Fatal("expected an error for an inverted range")
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse("")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty slice, nil error, got %v, %v", got, err)
	}
}

func TestResolveIncludeExcludeMutuallyExclusive(t *testing.T) {
	if _, err := Resolve([]int{0}, []int{1}); err == nil {
		t.Fatal("expected an error when both include and exclude are set")
	}
}

func TestResolveExcludeComplement(t *testing.T) {
	got, err := Resolve(nil, []int{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{0, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveNeitherSetIsAllPages(t *testing.T) {
	got, err := Resolve(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{0, 1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
