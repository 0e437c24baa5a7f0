// Package pricing holds the exchange tick table and price-text helpers.
package pricing

import (
	"strconv"
	"strings"
)

const currencySuffix = "원"

type tickBracket struct {
	below int64
	tick  int64
}

var tickTable = []tickBracket{
	{1_000, 1},
	{5_000, 5},
	{10_000, 10},
	{50_000, 50},
	{100_000, 100},
	{500_000, 500},
}

const topTick = 1_000

// TickSize returns the minimum price increment for price.
// Brackets are half-open: a price equal to a bound uses the next bracket.
func TickSize(price int64) int64 {
	for _, b := range tickTable {
		if price < b.below {
			return b.tick
		}
	}
	return topTick
}

// SellPrice is one tick below the current observed price.
func SellPrice(current int64) int64 {
	return current - TickSize(current)
}

// ParsePrice turns page text like "75,000원" into 75000.
// Placeholders ("-", ""), and anything else that is not a number, yield 0.
// A leading sign is a direction marker and is dropped.
func ParsePrice(text string) int64 {
	s := strings.TrimSpace(text)
	s = strings.TrimSuffix(s, currencySuffix)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// FormatPrice renders n with thousands separators and the currency suffix.
func FormatPrice(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	b.WriteString(currencySuffix)
	return b.String()
}
