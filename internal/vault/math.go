package vault

import "math/big"

// mulDiv computes floor(a * b / c) in the big.Int domain so the
// intermediate product cannot overflow. Returns ErrArithmeticOverflow
// when the result does not fit a uint64.
func mulDiv(a, b, c uint64) (uint64, error) {
	// big.Int panics on a zero divisor.
	if c == 0 {
		return 0, ErrInvalidAmount
	}
	result := new(big.Int).SetUint64(a)
	result.Mul(result, new(big.Int).SetUint64(b))
	result.Div(result, new(big.Int).SetUint64(c))
	if !result.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return result.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrInvalidAmount
	}
	return a - b, nil
}
