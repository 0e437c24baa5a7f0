package interfaces

import (
	"context"

	"daytrader/internal/types"
)

type Engine interface {
	// Run drives the day's trade until it reaches a terminal state, the
	// detection window closes, or ctx is cancelled.
	Run(ctx context.Context) (types.State, error)
	State() types.State
	Position() *types.Position
}
