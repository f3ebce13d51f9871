package humantime

import "testing"

func TestSeconds(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 seconds"},
		{1, "1 second"},
		{45, "45 seconds"},
		{60, "1 minute"},
		{125, "2 minutes 5 seconds"},
		{5.5, "5.50 seconds"},
	}
	for _, c := range cases {
		if got := Seconds(c.in); got != c.want {
			t.Errorf("Seconds(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTimestamp(t *testing.T) {
	got := Timestamp(0)
	if got == "" {
		t.Fatal("expected non-empty formatted timestamp")
	}
}
