package types

import (
	"fmt"
	"time"
)

// KST is the exchange time zone. Trading days roll over at KST midnight.
var KST = time.FixedZone("KST", 9*60*60)

const (
	DateLayout     = "20060102"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// TradeDate returns the calendar date of t in the exchange time zone.
func TradeDate(t time.Time) string {
	return t.In(KST).Format(DateLayout)
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Source tags where an observation or a decision came from.
type Source string

const (
	SourceSignal Source = "SIGNAL"
	SourcePoll   Source = "POLL"
	SourcePush   Source = "PUSH"
)

// State is the lifecycle state of the day's single trade.
type State int

const (
	StateIdle State = iota
	StateSignalWait
	StateBuyPending
	StateHolding
	StateRestoredHolding
	StateSellPending
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:            "IDLE",
	StateSignalWait:      "SIGNAL_WAIT",
	StateBuyPending:      "BUY_PENDING",
	StateHolding:         "HOLDING",
	StateRestoredHolding: "RESTORED_HOLDING",
	StateSellPending:     "SELL_PENDING",
	StateDone:            "DONE",
	StateFailed:          "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is allowed out of s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Holding reports whether a position is open and being watched.
func (s State) Holding() bool {
	return s == StateHolding || s == StateRestoredHolding
}

// AllStates lists every state in declaration order.
func AllStates() []State {
	out := make([]State, 0, len(stateNames))
	for i := range stateNames {
		out = append(out, State(i))
	}
	return out
}

// Position is the day's trade record. The JSON keys match the persisted lock file.
type Position struct {
	TradeDate        string  `json:"last_trading_date"`
	TradeTime        string  `json:"trading_time"`
	Symbol           string  `json:"stock_code"`
	Name             string  `json:"stock_name"`
	BuyPrice         int64   `json:"buy_price"`
	Quantity         int64   `json:"quantity"`
	TargetProfitRate float64 `json:"target_profit_rate,omitempty"`
}

// Valid reports whether p describes an open position.
func (p Position) Valid() bool {
	return p.Symbol != "" && p.Quantity > 0 && p.BuyPrice > 0
}

// ProfitRate returns (current - buy) / buy, or 0 when no buy price is known.
func (p Position) ProfitRate(current int64) float64 {
	if p.BuyPrice <= 0 {
		return 0
	}
	return float64(current-p.BuyPrice) / float64(p.BuyPrice)
}

// DetectionEvent is one snapshot of the signal source.
type DetectionEvent struct {
	HasData          bool              `json:"has_data"`
	Symbol           string            `json:"symbol"`
	Name             string            `json:"name"`
	CurrentPriceText string            `json:"current_price_text"`
	Fields           map[string]string `json:"fields,omitempty"`
	ObservedAt       time.Time         `json:"observed_at"`
}

// OrderReply is what a gateway returned for one order request.
type OrderReply struct {
	OrderID  string `json:"order_id"`
	Exchange string `json:"exchange,omitempty"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
}

// OrderOutcome is the normalized result of one submission.
type OrderOutcome struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"order_id,omitempty"`
	Symbol   string `json:"symbol"`
	Side     Side   `json:"side"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	Exchange string `json:"exchange,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TradeResult is the audit artifact written for every buy and sell attempt.
type TradeResult struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Action       Side            `json:"action"`
	Source       Source          `json:"source"`
	Position     *Position       `json:"position,omitempty"`
	Detection    *DetectionEvent `json:"detection,omitempty"`
	CurrentPrice int64           `json:"current_price"`
	ProfitRate   float64         `json:"profit_rate"`
	Outcome      OrderOutcome    `json:"order_result"`
}
