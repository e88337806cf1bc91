package internal

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the fixed point scale of every token moved by the bridge.
const TokenDecimals = 18

func FormatTokens(amount *big.Int) string {
	return FormatBigInt(amount, TokenDecimals)
}

// FormatBigInt is a generic function to format any big integer with the specified
// number of base decimals, trimming trailing zeros of the fractional part
func FormatBigInt(amount *big.Int, baseDecimals int) string {
	if amount == nil {
		return "0"
	}

	value := new(big.Int).Set(amount)

	negative := value.Sign() < 0
	if negative {
		value.Abs(value)
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(baseDecimals)), nil)
	intPart, remainder := new(big.Int).QuoRem(value, divisor, new(big.Int))

	result := intPart.String()
	if remainder.Sign() != 0 {
		padded := strings.Repeat("0", baseDecimals-len(remainder.String())) + remainder.String()
		result = fmt.Sprintf("%s.%s", result, strings.TrimRight(padded, "0"))
	}

	if negative {
		return "-" + result
	}
	return result
}

// ParseTokenAmount converts a decimal token amount such as "1.5" into its integer
// representation scaled by 10^baseDecimals. The conversion is exact: more fractional
// digits than baseDecimals is an error rather than a rounding.
func ParseTokenAmount(value string, baseDecimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}

	intPart, fracPart, hasDot := strings.Cut(value, ".")
	if hasDot && fracPart == "" && intPart == "" {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	if len(fracPart) > baseDecimals {
		return nil, fmt.Errorf("amount %s has more than %d decimals", value, baseDecimals)
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, part := range []string{intPart, fracPart} {
		if strings.Trim(part, "0123456789") != "" {
			return nil, fmt.Errorf("invalid amount: %s", value)
		}
	}

	digits := strings.TrimLeft(intPart+fracPart+strings.Repeat("0", baseDecimals-len(fracPart)), "0")
	if digits == "" {
		digits = "0"
	}

	return ParseUint256BigInt(digits)
}
