// Package eod turns the day's trade journal into a per-stock CSV summary.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/tradelog"
	"daytrader/internal/types"
)

// Summaries are due once the KRX closing auction has settled.
const (
	closeHour   = 15
	closeMinute = 40
)

type summarizer struct {
	logDir string
	now    func() time.Time
}

var _ interfaces.EodSummarizer = (*summarizer)(nil)

func NewSummarizer(logDir string, now func() time.Time) interfaces.EodSummarizer {
	if now == nil {
		now = time.Now
	}
	return &summarizer{logDir: logDir, now: now}
}

func (s *summarizer) csvPath(t time.Time) string {
	return filepath.Join(s.logDir, "eod", t.In(types.KST).Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates the filled orders of t's journal. It returns an
// empty path when there is nothing to summarize.
func (s *summarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := tradelog.DailyPath(s.logDir, t)
	f, err := os.Open(inPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l tradelog.Line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil || !l.Success || l.Symbol == "" {
			continue
		}
		row := aggs[l.Symbol]
		if row == nil {
			row = &aggRow{Symbol: l.Symbol}
			aggs[l.Symbol] = row
		}
		if l.Name != "" {
			row.Name = l.Name
		}
		switch types.Side(l.Side) {
		case types.SideBuy:
			row.BuyQty += l.Qty
			row.BuyValue += l.Qty * l.Price
		case types.SideSell:
			row.SellQty += l.Qty
			row.SellValue += l.Qty * l.Price
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "name", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalBuy, totalSell int64
	var totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		pnl := r.realizedPnL()
		rec := []string{
			r.Symbol,
			r.Name,
			strconv.FormatInt(r.BuyQty, 10),
			fmt.Sprintf("%.2f", r.buyAvg()),
			strconv.FormatInt(r.SellQty, 10),
			fmt.Sprintf("%.2f", r.sellAvg()),
			fmt.Sprintf("%.0f", pnl),
			strconv.FormatInt(r.BuyValue, 10),
			strconv.FormatInt(r.SellValue, 10),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += pnl
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "", "", fmt.Sprintf("%.0f", totalPnL),
		strconv.FormatInt(totalBuy, 10), strconv.FormatInt(totalSell, 10)}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *summarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(s.now())
}

// ShouldRunNow is true after 15:40 KST when today's CSV does not exist yet.
func (s *summarizer) ShouldRunNow() (bool, string) {
	now := s.now().In(types.KST)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), closeHour, closeMinute, 0, 0, types.KST)
	outPath := s.csvPath(now)
	if now.After(cutoff) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
