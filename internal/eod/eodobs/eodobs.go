package eodobs

import (
	"context"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/trace"
	"daytrader/internal/types"
)

type observableSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableSummarizer{summarizer: summarizer}
}

func (o *observableSummarizer) SummarizeDay(t time.Time) (string, error) {
	return o.observe("eod.SummarizeDay", t.In(types.KST).Format("2006-01-02"), func() (string, error) {
		return o.summarizer.SummarizeDay(t)
	})
}

func (o *observableSummarizer) SummarizeToday() (string, error) {
	return o.observe("eod.SummarizeToday", "today", o.summarizer.SummarizeToday)
}

func (o *observableSummarizer) ShouldRunNow() (bool, string) {
	ctx, span := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer span.End()

	shouldRun, csvPath := o.summarizer.ShouldRunNow()
	logger.DebugSkip(ctx, 1, "EOD check completed",
		"should_run", shouldRun,
		"csv_path", csvPath,
	)
	return shouldRun, csvPath
}

func (o *observableSummarizer) observe(op, date string, fn func() (string, error)) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), op)
	defer span.End()

	start := time.Now()
	csvPath, err := fn()
	elapsed := time.Since(start).Milliseconds()
	switch {
	case err != nil:
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "date", date, "duration_ms", elapsed)
	case csvPath == "":
		logger.InfoSkip(ctx, 2, "No filled orders to summarize", "date", date)
	default:
		logger.InfoSkip(ctx, 2, "EOD summary written", "date", date, "csv_path", csvPath, "duration_ms", elapsed)
	}
	return csvPath, err
}
