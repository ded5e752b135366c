package utils

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "he..."},
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"", 5, ""},
		{"abc", 2, "ab"},
		{"abc", 3, "abc"},
	}

	for _, tt := range tests {
		result := TruncateString(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("TruncateString(%q, %d) = %q; want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123", "123"},
		{"1234", "1,234"},
		{"123456", "123,456"},
		{"1234567", "1,234,567"},
		{"1234.56", "1,234.56"},
		{"-1234", "-1,234"},
		{"", ""},
	}

	for _, tt := range tests {
		result := AddCommas(tt.input)
		if result != tt.expected {
			t.Errorf("AddCommas(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func TestHashPreview(t *testing.T) {
	assert.Equal(t, "0x12345678...", HashPreview("0x1234567890abcdef"))
	assert.Equal(t, "0x12", HashPreview("0x12"))
}

func TestShortenAddress(t *testing.T) {
	assert.Equal(t, "0xAb58...eC9B", ShortenAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"))
	assert.Equal(t, "0x123", ShortenAddress("0x123"))
}

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", true},
		{"0xab5801a7d398351b8be11c439e05c5b3259aec9b", true},
		{"0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B", true},
		{"0xAb5801a7D398351b8bE11C439e05C5B3259aec9B", false}, // bad checksum
		{"Ab5801a7D398351b8bE11C439e05C5B3259aeC9B", false},
		{"0x123", false},
		{"", false},
		{"not an address", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidAddress(tt.input), tt.input)
	}
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		err      error
	}{
		{"1", "1000000000000000000", nil},
		{"1.5", "1500000000000000000", nil},
		{" 0.5 ", "500000000000000000", nil},
		{".25", "250000000000000000", nil},
		{"2.", "2000000000000000000", nil},
		{"0", "0", nil},
		{"0.000000000000000001", "1", nil},
		{"", "", ErrEmptyAmount},
		{"   ", "", ErrEmptyAmount},
		{"-1", "", ErrNegativeAmount},
		{"abc", "", ErrBadAmount},
		{"1.2.3", "", ErrBadAmount},
		{".", "", ErrBadAmount},
		{"1e18", "", ErrBadAmount},
		{"0.0000000000000000001", "", ErrTooPrecise},
		{"1" + strings.Repeat("0", 80), "", ErrAmountOverflow},
	}

	for _, tt := range tests {
		got, err := ParseEther(tt.input)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got.Dec(), tt.input)
	}
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei      string
		expected string
	}{
		{"1000000000000000000", "1.0"},
		{"500000000000000000", "0.5"},
		{"1230000000000000000000", "1230.0"},
		{"1", "0.000000000000000001"},
		{"0", "0.0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatEther(uint256.MustFromDecimal(tt.wei)))
	}
	assert.Equal(t, "0.0", FormatEther(nil))
}

func TestFormatEtherDecimals(t *testing.T) {
	assert.Equal(t, "1,230.1234", FormatEtherDecimals(uint256.MustFromDecimal("1230123456000000000000"), 4))
	assert.Equal(t, "1.0", FormatEtherDecimals(uint256.MustFromDecimal("1000010000000000000"), 4))
	assert.Equal(t, "0.5", FormatEtherDecimals(uint256.MustFromDecimal("500000000000000000"), 2))
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"1.0", "0.5", "12.345", "0.000000000000000001"} {
		wei, err := ParseEther(s)
		require.NoError(t, err)
		assert.Equal(t, s, FormatEther(wei))
	}
}

func TestWeiToFloat64(t *testing.T) {
	assert.Equal(t, 1.5, WeiToFloat64(uint256.MustFromDecimal("1500000000000000000")))
	assert.Equal(t, 0.0, WeiToFloat64(nil))
}
