package types

import (
	"fmt"
	"math"
	"math/big"
)

// NoPTS marks a missing time stamp.
const NoPTS = int64(math.MinInt64)

// DefaultPTSPerSecond is the resolution of DefaultTimeBase.
const DefaultPTSPerSecond = 1000000

type Rational struct {
	Num int
	Den int
}

func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

// DefaultTimeBase is 1/DefaultPTSPerSecond.
func DefaultTimeBase() Rational {
	return Rational{Num: 1, Den: DefaultPTSPerSecond}
}

func (r Rational) IsValid() bool {
	return r.Num > 0 && r.Den > 0
}

func (r Rational) IsZero() bool {
	return r.Num == 0
}

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

func (r Rational) Equal(other Rational) bool {
	return int64(r.Num)*int64(other.Den) == int64(other.Num)*int64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Rescale converts ts expressed in units of `from` into units of `to`,
// rounding to the nearest integer (halves away from zero). NoPTS is
// preserved.
func Rescale(ts int64, from, to Rational) int64 {
	if ts == NoPTS {
		return NoPTS
	}
	if from.Equal(to) || !from.IsValid() || !to.IsValid() {
		return ts
	}

	// ts * from.Num * to.Den / (from.Den * to.Num)
	num := new(big.Int).Mul(big.NewInt(ts), big.NewInt(int64(from.Num)*int64(to.Den)))
	den := big.NewInt(int64(from.Den) * int64(to.Num))

	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	m2 := new(big.Int).Mul(m.Abs(m), big.NewInt(2))
	if m2.Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}
