package pricing

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestTickSizeBoundaries(t *testing.T) {
	cases := []struct {
		price int64
		want  int64
	}{
		{0, 1},
		{999, 1},
		{1_000, 5},
		{4_999, 5},
		{5_000, 10},
		{9_999, 10},
		{10_000, 50},
		{49_999, 50},
		{50_000, 100},
		{99_999, 100},
		{100_000, 500},
		{499_999, 500},
		{500_000, 1_000},
		{2_000_000, 1_000},
	}
	for _, tc := range cases {
		if got := TickSize(tc.price); got != tc.want {
			t.Errorf("TickSize(%d) = %d, want %d", tc.price, got, tc.want)
		}
	}
}

func TestTickSizeMonotonic(t *testing.T) {
	prev := TickSize(0)
	for p := int64(1); p <= 600_000; p += 7 {
		cur := TickSize(p)
		if cur < prev {
			t.Fatalf("tick size decreased at %d: %d < %d", p, cur, prev)
		}
		prev = cur
	}
}

func TestSellPrice(t *testing.T) {
	assert.Equal(t, SellPrice(76_600), int64(76_500))
	assert.Equal(t, SellPrice(50_000), int64(49_900))
	assert.Equal(t, SellPrice(49_950), int64(49_900))
	assert.Equal(t, SellPrice(999), int64(998))
	assert.Equal(t, SellPrice(500_000), int64(499_000))
}

func TestParsePrice(t *testing.T) {
	cases := map[string]int64{
		"75,000원":      75_000,
		" 1,234,567원 ": 1_234_567,
		"75000":        75_000,
		"+76,600":      76_600,
		"-20800":       20_800,
		"-":            0,
		"":             0,
		"원":            0,
		"abc":          0,
		"12a,000원":     0,
	}
	for in, want := range cases {
		if got := ParsePrice(in); got != want {
			t.Errorf("ParsePrice(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, FormatPrice(75_000), "75,000원")
	assert.Equal(t, FormatPrice(999), "999원")
	assert.Equal(t, FormatPrice(1_000), "1,000원")
	assert.Equal(t, FormatPrice(0), "0원")
	assert.Equal(t, FormatPrice(1_234_567), "1,234,567원")
}

func TestPriceTextRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, 12, 999, 1_000, 75_000, 100_001, 9_876_543_210} {
		if got := ParsePrice(FormatPrice(n)); got != n {
			t.Errorf("round trip of %d gave %d", n, got)
		}
	}
}
