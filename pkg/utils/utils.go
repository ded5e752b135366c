package utils

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// EtherDecimals is the number of decimals between ether and wei.
const EtherDecimals = 18

var (
	ErrEmptyAmount    = errors.New("amount is empty")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrBadAmount      = errors.New("amount is not a decimal number")
	ErrTooPrecise     = errors.New("amount has more than 18 decimals")
	ErrAmountOverflow = errors.New("amount does not fit in 256 bits")
)

func TruncateString(str string, num int) string {
	if len(str) <= num {
		return str
	}
	if num <= 3 {
		return str[:num]
	}
	return str[0:num-3] + "..."
}

// HashPreview returns the first ten characters of a hash followed by an ellipsis.
func HashPreview(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10] + "..."
}

// ShortenAddress renders an address as 0x1234...abcd.
func ShortenAddress(addr string) string {
	if len(addr) < 42 {
		return addr
	}
	return addr[:6] + "..." + addr[38:]
}

// IsValidAddress accepts 0x-prefixed 20 byte hex addresses. Mixed-case input
// must carry a valid EIP-55 checksum.
func IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}

func AddCommas(s string) string {
	if len(s) == 0 {
		return s
	}
	parts := strings.Split(s, ".")
	integerPart := parts[0]
	sign := ""
	if strings.HasPrefix(integerPart, "-") {
		sign = "-"
		integerPart = integerPart[1:]
	}

	n := len(integerPart)
	if n <= 3 {
		return s
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := n % 3
	if remainder > 0 {
		result.WriteString(integerPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < n; i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(integerPart[i : i+3])
	}

	if len(parts) > 1 {
		result.WriteString(".")
		result.WriteString(parts[1])
	}
	return result.String()
}

// ParseEther converts a human decimal ether amount ("1.5") to wei.
func ParseEther(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegativeAmount
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && whole == "" && frac == "" {
		return nil, ErrBadAmount
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, ErrBadAmount
	}
	if len(frac) > EtherDecimals {
		return nil, ErrTooPrecise
	}
	if whole == "" {
		whole = "0"
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", EtherDecimals-len(frac)), "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatEther renders wei as an ether decimal the way ethers does ("1.0", "0.5").
func FormatEther(wei *uint256.Int) string {
	if wei == nil {
		return "0.0"
	}
	b := wei.ToBig()
	whole, rem := new(big.Int).QuoRem(b, big.NewInt(params.Ether), new(big.Int))
	frac := rem.String()
	frac = strings.Repeat("0", EtherDecimals-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}
	return whole.String() + "." + frac
}

// FormatEtherDecimals renders wei with at most decimals fractional digits and
// thousands separators.
func FormatEtherDecimals(wei *uint256.Int, decimals int) string {
	s := FormatEther(wei)
	whole, frac, _ := strings.Cut(s, ".")
	if decimals >= 0 && len(frac) > decimals {
		frac = strings.TrimRight(frac[:decimals], "0")
	}
	if frac == "" {
		frac = "0"
	}
	return AddCommas(whole + "." + frac)
}

// WeiToFloat64 converts wei to an approximate float ether value, for charts.
func WeiToFloat64(wei *uint256.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei.ToBig())
	f.Quo(f, big.NewFloat(params.Ether))
	val, _ := f.Float64()
	return val
}
