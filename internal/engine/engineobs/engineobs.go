package engineobs

import (
	"context"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/trace"
	"daytrader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Run(ctx context.Context) (types.State, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Run")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting trading day")

	state, err := oe.engine.Run(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Trading day ended with error", err,
			"state", state.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return state, err
	}

	fields := []any{
		"state", state.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if p := oe.engine.Position(); p != nil {
		fields = append(fields, "symbol", p.Symbol, "quantity", p.Quantity, "buy_price", p.BuyPrice)
	}
	logger.InfoSkip(ctx, 1, "Trading day finished", fields...)
	return state, nil
}

func (oe *observableEngine) State() types.State {
	return oe.engine.State()
}

func (oe *observableEngine) Position() *types.Position {
	return oe.engine.Position()
}
