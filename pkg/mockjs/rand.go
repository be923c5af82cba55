package mockjs

import (
	"fmt"
	mathrand "math/rand/v2"
	"strconv"
	"strings"
)

// intN returns a uniform int in [0, n). Non-positive n yields 0.
func (st *run) intN(n int) int {
	if n <= 0 {
		return 0
	}
	if st.rng != nil {
		return st.rng.IntN(n)
	}
	return mathrand.IntN(n)
}

// intRange returns a uniform int in [min, max]. Reversed bounds are swapped.
func (st *run) intRange(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + st.intN(max-min+1)
}

// float01 returns a uniform float in [0, 1).
func (st *run) float01() float64 {
	if st.rng != nil {
		return st.rng.Float64()
	}
	return mathrand.Float64()
}

// floatWithDecimals builds a float from an integer part and a random
// fraction of exactly decimals digits. The last digit is never zero so the
// rendered value keeps its full width.
func (st *run) floatWithDecimals(intPart, decimals int) float64 {
	if decimals <= 0 {
		return float64(intPart)
	}
	if decimals > 10 {
		decimals = 10
	}
	var frac strings.Builder
	for i := 0; i < decimals; i++ {
		if i == decimals-1 {
			frac.WriteByte(byte('1' + st.intN(9)))
		} else {
			frac.WriteByte(byte('0' + st.intN(10)))
		}
	}
	f, err := strconv.ParseFloat(fmt.Sprintf("%d.%s", intPart, frac.String()), 64)
	if err != nil {
		return float64(intPart)
	}
	return f
}

// pick returns a random element of choices.
func pick(st *run, choices []string) string {
	return choices[st.intN(len(choices))]
}
