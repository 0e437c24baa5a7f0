package eod

// aggRow is the day's filled volume for one stock.
type aggRow struct {
	Symbol    string
	Name      string
	BuyQty    int64
	BuyValue  int64
	SellQty   int64
	SellValue int64
}

// realizedPnL prices the matched quantity at the average buy and sell prices.
func (r aggRow) realizedPnL() float64 {
	matched := min(r.BuyQty, r.SellQty)
	if matched == 0 {
		return 0
	}
	return float64(matched) * (r.sellAvg() - r.buyAvg())
}

func (r aggRow) buyAvg() float64 {
	if r.BuyQty == 0 {
		return 0
	}
	return float64(r.BuyValue) / float64(r.BuyQty)
}

func (r aggRow) sellAvg() float64 {
	if r.SellQty == 0 {
		return 0
	}
	return float64(r.SellValue) / float64(r.SellQty)
}
