package money

import "testing"

func TestFromFloatRounding(t *testing.T) {
	cases := []struct {
		in   float64
		want Cents
	}{
		{1.005, 101},
		{1.004, 100},
		{-1.005, -101},
		{0, 0},
	}
	for _, c := range cases {
		if got := FromFloat(c.in); got != c.want {
			t.Errorf("FromFloat(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := FromFloat(100.50)
	b := FromFloat(25.25)
	if got := a.Add(b); got != FromFloat(125.75) {
		t.Errorf("Add = %v, want 125.75", got)
	}
	if got := a.Sub(b); got != FromFloat(75.25) {
		t.Errorf("Sub = %v, want 75.25", got)
	}
}

func TestString(t *testing.T) {
	if got := FromFloat(1234.5).String(); got != "$1,234.50" {
		t.Errorf("String() = %q, want $1,234.50", got)
	}
	if got := FromFloat(-5).String(); got != "-$5.00" {
		t.Errorf("String() = %q, want -$5.00", got)
	}
}
