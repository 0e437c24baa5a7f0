package kiwoom

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

const (
	tradeTypeLimit  = "0"
	tradeTypeMarket = "3"
)

type orderRequest struct {
	Exchange       string `json:"dmst_stex_tp"`
	Symbol         string `json:"stk_cd"`
	Quantity       string `json:"ord_qty"`
	Price          string `json:"ord_uv"`
	TradeType      string `json:"trde_tp"`
	ConditionPrice string `json:"cond_uv"`
}

// Gateway places domestic stock orders. In DRY_RUN mode nothing is sent and
// a simulated order id is returned.
type Gateway struct {
	client   *Client
	mode     string
	exchange string
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

func NewGateway(client *Client) *Gateway {
	ex := client.p.Exchange
	if ex == "" {
		ex = "KRX"
	}
	return &Gateway{client: client, mode: client.p.Mode, exchange: ex}
}

func (g *Gateway) BuyMarket(ctx context.Context, symbol string, qty int64) (types.OrderReply, error) {
	return g.place(ctx, apiIDBuy, orderRequest{
		Exchange:  g.exchange,
		Symbol:    symbol,
		Quantity:  strconv.FormatInt(qty, 10),
		TradeType: tradeTypeMarket,
	})
}

func (g *Gateway) SellLimit(ctx context.Context, symbol string, qty, price int64) (types.OrderReply, error) {
	return g.place(ctx, apiIDSell, orderRequest{
		Exchange:  g.exchange,
		Symbol:    symbol,
		Quantity:  strconv.FormatInt(qty, 10),
		Price:     strconv.FormatInt(price, 10),
		TradeType: tradeTypeLimit,
	})
}

func (g *Gateway) place(ctx context.Context, apiID string, req orderRequest) (types.OrderReply, error) {
	if g.mode == "DRY_RUN" {
		return types.OrderReply{
			OrderID:  fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
			Exchange: req.Exchange,
			Status:   "SIMULATED",
			Message:  "dry-run",
		}, nil
	}

	token, err := g.client.Token(ctx)
	if err != nil {
		return types.OrderReply{}, err
	}
	res, err := g.client.post(ctx, orderPath, map[string]string{
		"api-id":        apiID,
		"authorization": "Bearer " + token,
		"cont-yn":       "N",
		"next-key":      "",
	}, req)
	if err != nil {
		return types.OrderReply{}, fmt.Errorf("kiwoom %s: %w", apiID, err)
	}

	reply := types.OrderReply{
		OrderID:  res.Get("ord_no").String(),
		Exchange: res.Get("dmst_stex_tp").String(),
		Status:   res.Get("return_code").String(),
		Message:  res.Get("return_msg").String(),
	}
	if reply.Exchange == "" {
		reply.Exchange = req.Exchange
	}
	return reply, nil
}
