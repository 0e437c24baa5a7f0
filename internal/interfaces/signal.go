package interfaces

import (
	"context"

	"daytrader/internal/types"
)

// SignalSource returns the current detection snapshot. A snapshot with
// HasData=false is the normal "nothing yet" answer, not an error.
type SignalSource interface {
	ReadSnapshot(ctx context.Context) (types.DetectionEvent, error)
}
