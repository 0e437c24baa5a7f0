package zerodha

import (
	"context"
	"errors"
	"fmt"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

type Params struct {
	Mode        string
	APIKey      string
	AccessToken string
	Exchange    string
	Product     string
}

// orderPlacer is the part of the Kite Connect client the gateway needs.
type orderPlacer interface {
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
}

// Gateway places equity orders through Kite Connect.
type Gateway struct {
	p  Params
	kc orderPlacer
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

func NewGateway(p Params) *Gateway {
	if p.Exchange == "" {
		p.Exchange = kiteconnect.ExchangeNSE
	}
	if p.Product == "" {
		p.Product = kiteconnect.ProductCNC
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return &Gateway{p: p, kc: kc}
}

func (z *Gateway) BuyMarket(ctx context.Context, symbol string, qty int64) (types.OrderReply, error) {
	return z.place(ctx, kiteconnect.OrderParams{
		Tradingsymbol:   symbol,
		TransactionType: kiteconnect.TransactionTypeBuy,
		OrderType:       kiteconnect.OrderTypeMarket,
		Quantity:        int(qty),
	})
}

func (z *Gateway) SellLimit(ctx context.Context, symbol string, qty, price int64) (types.OrderReply, error) {
	return z.place(ctx, kiteconnect.OrderParams{
		Tradingsymbol:   symbol,
		TransactionType: kiteconnect.TransactionTypeSell,
		OrderType:       kiteconnect.OrderTypeLimit,
		Quantity:        int(qty),
		Price:           float64(price),
	})
}

func (z *Gateway) place(ctx context.Context, params kiteconnect.OrderParams) (types.OrderReply, error) {
	if z.p.Mode == "DRY_RUN" {
		return types.OrderReply{
			OrderID:  fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
			Exchange: z.p.Exchange,
			Status:   "SIMULATED",
			Message:  "dry-run",
		}, nil
	}

	if z.p.APIKey == "" || z.p.AccessToken == "" {
		return types.OrderReply{}, errors.New("missing API key/access token")
	}
	if err := ctx.Err(); err != nil {
		return types.OrderReply{}, err
	}

	params.Exchange = z.p.Exchange
	params.Product = z.p.Product
	params.Validity = kiteconnect.ValidityDay

	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return types.OrderReply{}, fmt.Errorf("kite %s %s: %w", params.TransactionType, params.Tradingsymbol, err)
	}
	return types.OrderReply{
		OrderID:  resp.OrderID,
		Exchange: z.p.Exchange,
		Status:   "PLACED",
		Message:  "ok",
	}, nil
}
