// Package signals reads the detection page that announces the stock to trade.
package signals

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

// Labels shown on the detection page. Each value sits in the element right
// after its label.
const (
	LabelName         = "종목이름"
	LabelCurrentPrice = "현재가"
	LabelChangeRate   = "등락률"
	LabelEntryPrice   = "매수가"
	LabelStopLoss     = "손절가"
	LabelCode         = "종목코드"
	LabelMarketCap    = "시가총액"
	LabelVolume       = "거래량"
	LabelProgram      = "프로그램"
	LabelStaticVI     = "정적 Vi (상승)"
	LabelTargetPrice  = "목표가"
	LabelHigh30       = "거래 30일 고가"
	LabelHigh52Week   = "52주 신고가"
	LabelInst7        = "거래 7일 기관"
	LabelForeign7     = "거래 7일 외국인"

	// missing is what the page shows in place of a value.
	missing = "-"
)

var labels = map[string]struct{}{
	LabelName: {}, LabelCurrentPrice: {}, LabelChangeRate: {}, LabelEntryPrice: {},
	LabelStopLoss: {}, LabelCode: {}, LabelMarketCap: {}, LabelVolume: {},
	LabelProgram: {}, LabelStaticVI: {}, LabelTargetPrice: {}, LabelHigh30: {},
	LabelHigh52Week: {}, LabelInst7: {}, LabelForeign7: {},
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	RequestTimeout time.Duration
	UserAgent      string
	Now            func() time.Time
}

// PageSource scrapes one page per ReadSnapshot call.
type PageSource struct {
	url    string
	opts   Options
	closed atomic.Bool
}

var _ interfaces.SignalSource = (*PageSource)(nil)

func NewPageSource(url string, opts Options) *PageSource {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PageSource{url: url, opts: opts}
}

// Close makes every later read return ErrSourceClosed.
func (s *PageSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *PageSource) ReadSnapshot(ctx context.Context) (types.DetectionEvent, error) {
	if s.closed.Load() {
		return types.DetectionEvent{}, types.ErrSourceClosed
	}
	if err := ctx.Err(); err != nil {
		return types.DetectionEvent{}, err
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.opts.RequestTimeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", s.opts.UserAgent)
		r.Headers.Set("Cache-Control", "no-cache")
	})

	var (
		fields  map[string]string
		status  int
		scraped bool
	)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		fields = extractFields(e.DOM)
		scraped = true
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})

	if err := c.Visit(s.url); err != nil {
		if ctx.Err() != nil {
			return types.DetectionEvent{}, ctx.Err()
		}
		if status == http.StatusGone {
			s.closed.Store(true)
			return types.DetectionEvent{}, fmt.Errorf("%w: %s answered %d", types.ErrSourceClosed, s.url, status)
		}
		return types.DetectionEvent{}, fmt.Errorf("%w: %v", types.ErrSignalUnavailable, err)
	}
	if !scraped {
		return types.DetectionEvent{}, fmt.Errorf("%w: %s returned no HTML document", types.ErrSignalUnavailable, s.url)
	}

	return snapshot(fields, s.opts.Now()), nil
}

// extractFields finds every known label among h3 and div elements and reads
// the text of its next sibling. The first occurrence of a label wins.
func extractFields(root *goquery.Selection) map[string]string {
	fields := make(map[string]string)
	root.Find("h3, div").Each(func(_ int, sel *goquery.Selection) {
		label := strings.TrimSpace(sel.Text())
		if _, ok := labels[label]; !ok {
			return
		}
		if _, seen := fields[label]; seen {
			return
		}
		value := strings.TrimSpace(sel.Next().Text())
		if value == "" {
			value = missing
		}
		fields[label] = value
	})
	return fields
}

func snapshot(fields map[string]string, now time.Time) types.DetectionEvent {
	ev := types.DetectionEvent{ObservedAt: now}
	name := fields[LabelName]
	if name == "" || name == missing {
		return ev
	}

	ev.HasData = true
	ev.Name = name
	ev.Symbol = present(fields[LabelCode])
	ev.CurrentPriceText = present(fields[LabelCurrentPrice])
	ev.Fields = fields
	return ev
}

func present(v string) string {
	if v == missing {
		return ""
	}
	return v
}
