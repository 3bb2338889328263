package rational_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mxllabs/mxl/internal/rational"
)

func TestIndexFromTimestampRoundTrips(t *testing.T) {
	rate := rational.Rate{Num: 60000, Den: 1001}
	const t0 int64 = 1_700_000_000_000_000_000 // ~2023-11, realistic TAI nanoseconds

	idx := rational.IndexFromTimestamp(rate, t0)
	assert.Greater(t, idx, int64(0), "a realistic timestamp must not overflow into a negative index")

	back := rational.TimestampFromIndex(rate, idx)
	period := float64(rate.Den) * 1e9 / float64(rate.Num)
	assert.LessOrEqual(t, back, t0, "the sample at idx must not start after t0")
	assert.InDelta(t, float64(t0), float64(back), period, "the sample at idx must start within one period of t0")
}

func TestIndexFromTimestampMatchesSmallCase(t *testing.T) {
	rate := rational.Rate{Num: 25, Den: 1}
	assert.Equal(t, int64(2), rational.IndexFromTimestamp(rate, 80_000_000))
	assert.Equal(t, int64(0), rational.IndexFromTimestamp(rate, 0))
}

func TestTimestampFromIndexCeilsToNextSample(t *testing.T) {
	rate := rational.Rate{Num: 25, Den: 1}
	// Period is 40ms; index 1 begins at exactly 40,000,000ns.
	assert.Equal(t, int64(40_000_000), rational.TimestampFromIndex(rate, 1))
}

func TestRateReduceNormalizesSign(t *testing.T) {
	r := rational.Rate{Num: -50, Den: -2}.Reduce()
	assert.Equal(t, rational.Rate{Num: 25, Den: 1}, r)
}

func TestRateEqualAndLess(t *testing.T) {
	a := rational.Rate{Num: 30000, Den: 1001}
	b := rational.Rate{Num: 60000, Den: 2002}
	assert.True(t, a.Equal(b))
	assert.True(t, a.Less(rational.Rate{Num: 30, Den: 1}))
}
