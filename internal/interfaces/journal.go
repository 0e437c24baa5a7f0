package interfaces

import (
	"context"

	"daytrader/internal/types"
)

type ResultRecorder interface {
	RecordResult(ctx context.Context, r types.TradeResult) error
}
