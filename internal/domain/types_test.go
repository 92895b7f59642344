package domain

import "testing"

func TestNormalizeWhitespace(t *testing.T) {
	cases := []struct{ in, want string }{
		{"print('init')", "print('init')"},
		{"  print( 'a' )  \n\t more  ", "print( 'a' ) more"},
		{"", ""},
		{"\n\n\n", ""},
	}
	for _, c := range cases {
		if got := NormalizeWhitespace(c.in); got != c.want {
			t.Errorf("NormalizeWhitespace(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestActionsEqualIgnoresWhitespace(t *testing.T) {
	a := []Action{{Short: "p", Script: "print('init')"}}
	b := []Action{{Short: "p", Script: "  print('init')  "}}
	if !ActionsEqual(a, b) {
		t.Fatal("expected actions equal after whitespace normalization")
	}

	c := []Action{{Short: "p", Script: "print('other')"}}
	if ActionsEqual(a, c) {
		t.Fatal("expected actions with different scripts to differ")
	}

	d := []Action{{Short: "p", Name: "Init", Script: "print('init')"}}
	if ActionsEqual(a, d) {
		t.Fatal("expected actions with different names to differ")
	}
}

func TestActionsEqualLengthMismatch(t *testing.T) {
	a := []Action{{Short: "p", Script: "x"}}
	b := []Action{{Short: "p", Script: "x"}, {Short: "q", Script: "y"}}
	if ActionsEqual(a, b) {
		t.Fatal("expected different-length action lists to differ")
	}
}
