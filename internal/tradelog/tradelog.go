package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

const (
	artifactLayout = "20060102_150405"
	journalLayout  = "2006-01-02"
)

// Line is one entry of the daily journal. The EOD summary reads these back.
type Line struct {
	Time       string  `json:"time"`
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name,omitempty"`
	Side       string  `json:"side"`
	Source     string  `json:"source"`
	Qty        int64   `json:"qty"`
	Price      int64   `json:"price"`
	OrderID    string  `json:"order_id,omitempty"`
	Success    bool    `json:"success"`
	ProfitRate float64 `json:"profit_rate,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// Journal writes one JSON artifact per trade result and appends a line to
// the day's journal file.
type Journal struct {
	resultsDir string
	logDir     string
	now        func() time.Time

	mu sync.Mutex
}

var _ interfaces.ResultRecorder = (*Journal)(nil)

func NewJournal(resultsDir, logDir string, now func() time.Time) *Journal {
	if now == nil {
		now = time.Now
	}
	return &Journal{resultsDir: resultsDir, logDir: logDir, now: now}
}

// DailyPath is the journal file for the KST day containing t.
func DailyPath(logDir string, t time.Time) string {
	return filepath.Join(logDir, t.In(types.KST).Format(journalLayout)+".txt")
}

func (j *Journal) RecordResult(ctx context.Context, r types.TradeResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = j.now()
	}
	r.Timestamp = r.Timestamp.In(types.KST)

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writeArtifact(r); err != nil {
		return err
	}
	return j.appendLine(r)
}

func (j *Journal) writeArtifact(r types.TradeResult) (string, error) {
	if err := os.MkdirAll(j.resultsDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s.json", r.Timestamp.Format(artifactLayout), safeName(displayName(r)), r.Action)
	p := filepath.Join(j.resultsDir, name)

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	// Two results in the same second for the same stock and side get the id appended.
	if _, err := os.Stat(p); err == nil {
		p = strings.TrimSuffix(p, ".json") + "_" + r.ID[:8] + ".json"
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func (j *Journal) appendLine(r types.TradeResult) error {
	p := DailyPath(j.logDir, r.Timestamp)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(lineFor(r))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

func lineFor(r types.TradeResult) Line {
	l := Line{
		Time:       r.Timestamp.Format(types.DateTimeLayout),
		ID:         r.ID,
		Symbol:     r.Outcome.Symbol,
		Name:       displayName(r),
		Side:       string(r.Action),
		Source:     string(r.Source),
		Qty:        r.Outcome.Quantity,
		Price:      r.Outcome.Price,
		OrderID:    r.Outcome.OrderID,
		Success:    r.Outcome.Success,
		ProfitRate: r.ProfitRate,
		Message:    r.Outcome.Message,
	}
	if l.Symbol == "" && r.Position != nil {
		l.Symbol = r.Position.Symbol
	}
	return l
}

func displayName(r types.TradeResult) string {
	switch {
	case r.Position != nil && r.Position.Name != "":
		return r.Position.Name
	case r.Detection != nil && r.Detection.Name != "":
		return r.Detection.Name
	case r.Outcome.Symbol != "":
		return r.Outcome.Symbol
	}
	return "unknown"
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
