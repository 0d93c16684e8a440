package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// QuantityPrecision is the number of decimal digits a Quantity resolves.
const QuantityPrecision = 4

// quantityScale is 10^QuantityPrecision.
const quantityScale int64 = 10000

// Quantity is an exact, non-negative fixed-point volume. The zero value is
// zero units. Quantities are comparable with == and usable as map keys.
type Quantity struct {
	raw int64
}

var (
	// ZeroQuantity is the empty amount.
	ZeroQuantity = Quantity{}
	// MaxQuantity is the saturation ceiling and doubles as the "unbounded" capacity sentinel.
	MaxQuantity = Quantity{raw: math.MaxInt64}
)

// NewQuantity returns a quantity of whole units. Negative input clamps to zero.
func NewQuantity(units int64) Quantity {
	if units <= 0 {
		return ZeroQuantity
	}
	if units > math.MaxInt64/quantityScale {
		return MaxQuantity
	}
	return Quantity{raw: units * quantityScale}
}

// QuantityFromRaw builds a quantity from its scaled integer representation.
func QuantityFromRaw(raw int64) Quantity {
	if raw < 0 {
		return ZeroQuantity
	}
	return Quantity{raw: raw}
}

// QuantityFromDecimal rounds d to QuantityPrecision digits and clamps it into range.
func QuantityFromDecimal(d decimal.Decimal) Quantity {
	if d.Sign() <= 0 {
		return ZeroQuantity
	}
	scaled := d.Shift(QuantityPrecision).Round(0)
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return MaxQuantity
	}
	return Quantity{raw: scaled.IntPart()}
}

// ParseQuantity parses a decimal string such as "12.5".
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroQuantity, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return QuantityFromDecimal(d), nil
}

// MustParseQuantity is ParseQuantity for constants and tests.
func MustParseQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// Raw returns the scaled integer representation.
func (q Quantity) Raw() int64 { return q.raw }

// Decimal returns q as an exact decimal.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(q.raw, -QuantityPrecision) }

// IsZero reports whether q is empty.
func (q Quantity) IsZero() bool { return q.raw == 0 }

// IsUnbounded reports whether q is the saturation sentinel.
func (q Quantity) IsUnbounded() bool { return q.raw == math.MaxInt64 }

// Add returns q+o, saturating at MaxQuantity.
func (q Quantity) Add(o Quantity) Quantity {
	if q.raw > math.MaxInt64-o.raw {
		return MaxQuantity
	}
	return Quantity{raw: q.raw + o.raw}
}

// Sub returns max(q-o, 0).
func (q Quantity) Sub(o Quantity) Quantity {
	if o.raw >= q.raw {
		return ZeroQuantity
	}
	return Quantity{raw: q.raw - o.raw}
}

// Mul returns q*n, saturating at MaxQuantity. Non-positive n yields zero.
func (q Quantity) Mul(n int64) Quantity {
	if n <= 0 || q.raw == 0 {
		return ZeroQuantity
	}
	if q.raw > math.MaxInt64/n {
		return MaxQuantity
	}
	return Quantity{raw: q.raw * n}
}

// Cmp returns -1, 0 or +1.
func (q Quantity) Cmp(o Quantity) int {
	switch {
	case q.raw < o.raw:
		return -1
	case q.raw > o.raw:
		return 1
	default:
		return 0
	}
}

// LessThan reports q < o.
func (q Quantity) LessThan(o Quantity) bool { return q.raw < o.raw }

// GreaterThan reports q > o.
func (q Quantity) GreaterThan(o Quantity) bool { return q.raw > o.raw }

// Min returns the smaller of q and o.
func (q Quantity) Min(o Quantity) Quantity {
	if o.raw < q.raw {
		return o
	}
	return q
}

// Max returns the larger of q and o.
func (q Quantity) Max(o Quantity) Quantity {
	if o.raw > q.raw {
		return o
	}
	return q
}

// ClampToAvailable limits a requested amount to the free capacity.
func ClampToAvailable(requested, capacity Quantity) Quantity {
	return requested.Min(capacity)
}

// mulDiv returns floor(a*b/c) without intermediate overflow. Requires a <= c.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	quo, _ := bits.Div64(hi, lo, uint64(c))
	return int64(quo)
}

func (q Quantity) String() string {
	if q.IsUnbounded() {
		return "unbounded"
	}
	return q.Decimal().String()
}

// MarshalText encodes q as its decimal string (the sentinel keeps its exact digits).
func (q Quantity) MarshalText() ([]byte, error) {
	return []byte(q.Decimal().String()), nil
}

// UnmarshalText accepts a decimal string; "unbounded" maps to MaxQuantity.
func (q *Quantity) UnmarshalText(text []byte) error {
	if string(text) == "unbounded" {
		*q = MaxQuantity
		return nil
	}
	parsed, err := ParseQuantity(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MarshalJSON encodes q as a JSON string to keep every digit exact.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Decimal().String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if nErr := json.Unmarshal(data, &n); nErr != nil {
			return fmt.Errorf("decode quantity: %w", err)
		}
		s = n.String()
	}
	return q.UnmarshalText([]byte(s))
}
