package core

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestChargeValue(t *testing.T) {
	cases := []struct {
		in  Charge
		out float64
	}{
		{"1625", 1625},
		{" 817 ", 817},
		{"12.5", 12.5},
		{"12abc", 12},
		{"1.", 1},
		{".5", 0.5},
		{"+3", 3},
		{"-4", -4},
		{"1e3", 1000},
		{"", 0},
		{"abc", 0},
		{"-", 0},
		{"0.1", 0.1},
		{"100", 100},
		{"000.000", 0},
		{"1e-400", 0},
		{"1e-99999999999999999999", 0},
		{"1.5e-3", 0.0015},
	}
	for _, tc := range cases {
		got := tc.in.Value().InexactFloat64()
		if got != tc.out {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestTotal(t *testing.T) {
	got := Total("50000", "1625", "1080", "817", "500", "6000")
	if got != 60022 {
		t.Fatalf("expected 60022, got %v", got)
	}
	if got := Total("100", "abc", "", "0.1", "0.2", "x9"); got != 100.3 {
		t.Fatalf("expected 100.3, got %v", got)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in  float64
		out string
	}{
		{0, "0"},
		{817, "817"},
		{1625, "1,625"},
		{60022, "60,022"},
		{60022.9, "60,022"},
		{100000, "1,00,000"},
		{12345678, "1,23,45,678"},
		{-60022, "-60,022"},
		{-100000, "-1,00,000"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in); got != tc.out {
			t.Fatalf("%v expected %q, got %q", tc.in, tc.out, got)
		}
	}
	if got := FormatCharge("abc"); got != "0" {
		t.Fatalf("non-numeric charge should format as 0, got %q", got)
	}
}

func TestChargeJSON(t *testing.T) {
	cases := []struct {
		in   Charge
		wire string
	}{
		{"50000", `50000`},
		{"12.5", `12.5`},
		{"1.50", `"1.50"`},
		{"12abc", `"12abc"`},
		{"", `""`},
		{"1e400", `"1e400"`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.in)
		if err != nil {
			t.Fatalf("marshal %q: %v", tc.in, err)
		}
		if string(b) != tc.wire {
			t.Fatalf("%q expected wire %s, got %s", tc.in, tc.wire, b)
		}
		var back Charge
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != tc.in {
			t.Fatalf("round trip %q -> %q", tc.in, back)
		}
	}

	var c Charge
	if err := json.Unmarshal([]byte(`null`), &c); err != nil || c != "" {
		t.Fatalf("null should decode to empty charge, got %q err=%v", c, err)
	}
}

func TestChargeOverflow(t *testing.T) {
	cases := []struct {
		in      Charge
		float   float64
		display string
	}{
		{"1e400", math.Inf(1), "Infinity"},
		{"-1e400", math.Inf(-1), "-Infinity"},
		{"1e99999999999999999999", math.Inf(1), "Infinity"},
		{"1e308", 1e308, ""},
	}
	for _, tc := range cases {
		if got := tc.in.Float(); got != tc.float {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.float, got)
		}
		if tc.display != "" {
			if got := FormatCharge(tc.in); got != tc.display {
				t.Fatalf("%q expected display %q, got %q", tc.in, tc.display, got)
			}
			if !tc.in.Value().IsZero() {
				t.Fatalf("%q overflow should have no finite value", tc.in)
			}
		}
	}

	if got := Total("50000", "1e400"); !math.IsInf(got, 1) {
		t.Fatalf("expected +Inf total, got %v", got)
	}
	if got := Total("1e400", "-1e400"); !math.IsNaN(got) {
		t.Fatalf("expected NaN total, got %v", got)
	}
}

func TestChargeCoercionBounded(t *testing.T) {
	inputs := []Charge{
		"1e10000000",
		"-1e10000000",
		"1e-10000000",
		Charge("1" + strings.Repeat("0", 1<<20)),
		Charge("0." + strings.Repeat("0", 1<<20) + "1"),
		Charge("1." + strings.Repeat("7", 1<<20)),
	}
	for _, in := range inputs {
		start := time.Now()
		b := NewDraft()
		if err := b.SetField(FieldRent, string(in)); err != nil {
			t.Fatalf("set rent: %v", err)
		}
		display := FormatCharge(in)
		total := FormatAmount(b.Total)
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("coercing a %d-byte charge took %v", len(in), elapsed)
		}
		if len(display) > 16 || len(total) > 16 {
			t.Fatalf("%d-byte charge rendered as %d and %d characters", len(in), len(display), len(total))
		}
	}
}

func TestFormatAmountNonFinite(t *testing.T) {
	cases := map[float64]string{
		math.Inf(1):  "Infinity",
		math.Inf(-1): "-Infinity",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Fatalf("%v expected %q, got %q", in, want, got)
		}
	}
	if got := FormatAmount(math.NaN()); got != "NaN" {
		t.Fatalf("NaN expected %q, got %q", "NaN", got)
	}
}
