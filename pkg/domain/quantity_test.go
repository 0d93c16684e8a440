package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuantityConstructionClamps(t *testing.T) {
	cases := []struct {
		name string
		got  Quantity
		raw  int64
	}{
		{"whole units", NewQuantity(5), 50000},
		{"negative units", NewQuantity(-3), 0},
		{"negative raw", QuantityFromRaw(-1), 0},
		{"fraction", MustParseQuantity("0.0001"), 1},
		{"rounded half up", MustParseQuantity("1.00005"), 10001},
		{"rounded down", MustParseQuantity("1.00004"), 10000},
		{"negative decimal", QuantityFromDecimal(decimal.RequireFromString("-2.5")), 0},
		{"overflow", QuantityFromDecimal(decimal.RequireFromString("1e30")), MaxQuantity.Raw()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got.Raw() != tc.raw {
				t.Fatalf("expected raw %d, got %d", tc.raw, tc.got.Raw())
			}
		})
	}
}

func TestParseQuantityRejectsGarbage(t *testing.T) {
	if _, err := ParseQuantity("ten"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestQuantityArithmeticSaturates(t *testing.T) {
	five, ten := NewQuantity(5), NewQuantity(10)
	if got := five.Add(ten); got != NewQuantity(15) {
		t.Fatalf("add: got %s", got)
	}
	if got := five.Sub(ten); !got.IsZero() {
		t.Fatalf("sub should saturate at zero, got %s", got)
	}
	if got := ten.Sub(five); got != five {
		t.Fatalf("sub: got %s", got)
	}
	if got := MaxQuantity.Add(five); got != MaxQuantity {
		t.Fatalf("add should saturate at max, got %s", got)
	}
	if got := five.Mul(4); got != NewQuantity(20) {
		t.Fatalf("mul: got %s", got)
	}
	if got := five.Mul(0); !got.IsZero() {
		t.Fatalf("mul by zero: got %s", got)
	}
	if got := MaxQuantity.Mul(2); got != MaxQuantity {
		t.Fatalf("mul should saturate, got %s", got)
	}
}

func TestQuantityOrdering(t *testing.T) {
	a, b := MustParseQuantity("1.5"), MustParseQuantity("2.25")
	if a.Cmp(b) != -1 || b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Fatalf("unexpected ordering")
	}
	if !a.LessThan(b) || !b.GreaterThan(a) {
		t.Fatalf("unexpected comparison helpers")
	}
	if a.Min(b) != a || a.Max(b) != b {
		t.Fatalf("unexpected min/max")
	}
	if ClampToAvailable(b, a) != a || ClampToAvailable(a, b) != a {
		t.Fatalf("unexpected clamp")
	}
	seen := map[Quantity]bool{MustParseQuantity("1.50"): true}
	if !seen[a] {
		t.Fatalf("equal quantities must be equal map keys")
	}
}

func TestQuantityStringAndJSON(t *testing.T) {
	q := MustParseQuantity("12.5")
	if q.String() != "12.5" {
		t.Fatalf("unexpected string %q", q.String())
	}
	if MaxQuantity.String() != "unbounded" {
		t.Fatalf("unexpected sentinel string %q", MaxQuantity.String())
	}
	data, err := json.Marshal(map[string]Quantity{"q": q, "max": MaxQuantity})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]Quantity
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["q"] != q || back["max"] != MaxQuantity {
		t.Fatalf("unexpected round trip: %+v", back)
	}
	var fromNumber Quantity
	if err := json.Unmarshal([]byte(`7.25`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if fromNumber != MustParseQuantity("7.25") {
		t.Fatalf("unexpected number decode %s", fromNumber)
	}
	var text Quantity
	if err := text.UnmarshalText([]byte("unbounded")); err != nil || text != MaxQuantity {
		t.Fatalf("expected unbounded text to decode to sentinel, got %s (%v)", text, err)
	}
}
