// Package rational implements the rational edit-rate arithmetic and TAI
// timepoint conversions that every flow index is defined in terms of.
package rational

import (
	"fmt"
	"math/big"
)

// Rate is a rational frequency (e.g. 60000/1001) at which a flow's index
// advances. It is invalid if Den == 0.
type Rate struct {
	Num int64
	Den int64
}

// LeapSecondOffset is the hard-coded TAI-minus-realtime offset used on
// platforms without CLOCK_TAI. Revisit if a leap second is announced.
const LeapSecondOffset = 37 // seconds

// Reduce returns r reduced by its gcd, with a normalized sign (Den > 0).
func (r Rate) Reduce() Rate {
	if r.Den == 0 {
		return r
	}
	if r.Den < 0 {
		r.Num, r.Den = -r.Num, -r.Den
	}
	if g := gcd(abs(r.Num), r.Den); g > 1 {
		r.Num /= g
		r.Den /= g
	}
	return r
}

// Valid reports whether the rate has a non-zero denominator.
func (r Rate) Valid() bool { return r.Den != 0 }

// Equal compares two rates by cross-multiplication, avoiding floating
// point and working correctly even when the rates are not reduced.
func (r Rate) Equal(o Rate) bool {
	return r.Num*o.Den == o.Num*r.Den
}

// Less reports whether r < o, again via cross-multiplication. Both rates
// must have a positive denominator (true after Reduce).
func (r Rate) Less(o Rate) bool {
	return r.Num*o.Den < o.Num*r.Den
}

func (r Rate) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

const nanosPerSecond = int64(1_000_000_000)

// IndexFromTimestamp computes ⌊ t · rate.num / (rate.den · 1e9) ⌋. The
// intermediate product overflows int64 for realistic TAI timestamps at
// broadcast rates (seconds-since-epoch · tens-of-thousands), so the
// multiply-divide runs through math/big.
func IndexFromTimestamp(rate Rate, t int64) int64 {
	num := new(big.Int).Mul(big.NewInt(t), big.NewInt(rate.Num))
	den := new(big.Int).Mul(big.NewInt(rate.Den), big.NewInt(nanosPerSecond))
	return floorDivBig(num, den)
}

// TimestampFromIndex computes ⌈ i · rate.den · 1e9 / rate.num ⌉, via
// math/big for the same overflow reason as IndexFromTimestamp.
func TimestampFromIndex(rate Rate, index int64) int64 {
	num := new(big.Int).Mul(big.NewInt(index), big.NewInt(rate.Den))
	num.Mul(num, big.NewInt(nanosPerSecond))
	return ceilDivBig(num, big.NewInt(rate.Num))
}

func floorDivBig(num, den *big.Int) int64 {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 && (num.Sign() < 0) != (den.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return q.Int64()
}

func ceilDivBig(num, den *big.Int) int64 {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 && (num.Sign() < 0) == (den.Sign() < 0) {
		q.Add(q, big.NewInt(1))
	}
	return q.Int64()
}
