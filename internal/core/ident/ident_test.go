package ident

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"zero padded", "0001234", "1234"},
		{"bare", "1234", "1234"},
		{"surrounding whitespace", " 1234 ", "1234"},
		{"padded and whitespace", " 0001234\t", "1234"},
		{"trailing whitespace only", "1234   ", "1234"},
		{"all zeros", "000", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"interior zeros kept", "1020300", "1020300"},
		{"alphanumeric", "0A100", "A100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"0001234", " 1234 ", "000", "", "  00A7  ", "7", "0070"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"0001234", "1234", true},
		{" 1234 ", "0001234", true},
		{"1234", "12340", false},
		{"", "000", true},
		{"007", "7", true},
	}

	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestZeroPadPattern(t *testing.T) {
	got := ZeroPadPattern(" 0001234 ")
	want := "^0*1234[[:space:]]*$"
	if got != want {
		t.Errorf("ZeroPadPattern = %q, want %q", got, want)
	}
}
