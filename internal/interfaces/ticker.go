package interfaces

import "context"

// PriceHandler receives every price update for a subscribed symbol.
// raw carries the feed's untyped fields for logging.
type PriceHandler func(symbol string, price int64, raw map[string]string)

// MarketFeed pushes live prices. Close releases the connection and returns
// after the receive goroutine has exited.
type MarketFeed interface {
	Subscribe(ctx context.Context, symbol string, handler PriceHandler) error
	Unsubscribe(ctx context.Context, symbol string) error
	Close() error
}
