package attendance

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeClock(t *testing.T) {
	for in, want := range map[string]string{"07:30": "07:30", "7:05": "07:05", "13:45:10": "13:45", " 08:00 ": "08:00"} {
		got, err := normalizeClock(in)
		if err != nil || got != want {
			t.Errorf("normalizeClock(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"", "24:00", "7", "noon", "12:61"} {
		if _, err := normalizeClock(in); !errors.Is(err, ErrValidation) {
			t.Errorf("normalizeClock(%q) err = %v, want ErrValidation", in, err)
		}
	}
}

func TestClockOn(t *testing.T) {
	got, err := clockOn("2025-09-19", "08:00", manila)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("clockOn = %v, want %v", got, want)
	}
	if _, err := clockOn("2025-13-01", "08:00", manila); err == nil {
		t.Fatal("bad date accepted")
	}
}

func TestLaterClock(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"08:00", "08:30", "08:30"},
		{"09:00", "08:30", "09:00"},
		{"bad", "08:30", "08:30"},
		{"08:00", "", "08:00"},
	}
	for _, tc := range cases {
		if got := laterClock(tc.a, tc.b); got != tc.want {
			t.Errorf("laterClock(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestHHMMValidator(t *testing.T) {
	v := newValidator()
	for _, ok := range []string{"07:30", "7:05", "23:59:59"} {
		if err := v.Var(ok, "hhmm"); err != nil {
			t.Errorf("hhmm rejected %q: %v", ok, err)
		}
	}
	for _, bad := range []string{"7pm", "24:00", ""} {
		if err := v.Var(bad, "hhmm"); err == nil {
			t.Errorf("hhmm accepted %q", bad)
		}
	}
}

func TestCheckWindow(t *testing.T) {
	end, same, early := "08:00", "07:30", "07:00"
	for _, e := range []*string{nil, &end, &same} {
		if err := checkWindow("07:30", e); err != nil {
			t.Errorf("checkWindow(07:30, %v) = %v", e, err)
		}
	}
	if err := checkWindow("07:30", &early); !errors.Is(err, ErrValidation) {
		t.Errorf("end before start: err = %v, want ErrValidation", err)
	}
}
