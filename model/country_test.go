package model

import "testing"

func TestCountryID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"France", "FR"},
		{"germany", "DE"},
		{"", "AT"},
		{"Atlantis", "AT"},
	}
	for _, tc := range tests {
		if got := countryID(tc.in, "AT"); got != tc.want {
			t.Errorf("countryID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddressLines(t *testing.T) {
	l1, l2 := addressLines("1 Main St\n\nSpringfield\r\nIL 62701 ")
	if l1 != "1 Main St" || l2 != "Springfield, IL 62701" {
		t.Errorf("addressLines = %q, %q", l1, l2)
	}
	if l1, l2 = addressLines("  "); l1 != "" || l2 != "" {
		t.Errorf("empty address = %q, %q", l1, l2)
	}
}
