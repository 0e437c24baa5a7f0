package kiwoom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/pricing"
	"daytrader/internal/types"
)

const (
	trnmLogin  = "LOGIN"
	trnmReg    = "REG"
	trnmRemove = "REMOVE"
	trnmReal   = "REAL"
	trnmPing   = "PING"

	// 0B is the stock execution stream; field 10 is the signed current price.
	realTypeExecution = "0B"
	fieldCurrentPrice = "10"

	loginTimeout = 10 * time.Second
	writeTimeout = 5 * time.Second
)

type regItem struct {
	Item []string `json:"item"`
	Type []string `json:"type"`
}

type regFrame struct {
	Trnm    string    `json:"trnm"`
	GrpNo   string    `json:"grp_no"`
	Refresh string    `json:"refresh"`
	Data    []regItem `json:"data"`
}

func registration(trnm, symbol string) regFrame {
	return regFrame{
		Trnm:    trnm,
		GrpNo:   "1",
		Refresh: "1",
		Data:    []regItem{{Item: []string{symbol}, Type: []string{realTypeExecution}}},
	}
}

// Feed streams execution prices over the Kiwoom websocket. It connects on
// the first Subscribe and does not reconnect after a drop.
type Feed struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]interfaces.PriceHandler

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ interfaces.MarketFeed = (*Feed)(nil)

func NewFeed(url string, tokens TokenSource) *Feed {
	return &Feed{
		url:      url,
		tokens:   tokens,
		dialer:   websocket.DefaultDialer,
		handlers: make(map[string]interfaces.PriceHandler),
		done:     make(chan struct{}),
	}
}

func (f *Feed) Subscribe(ctx context.Context, symbol string, handler interfaces.PriceHandler) error {
	if err := f.connect(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	f.handlers[symbol] = handler
	f.mu.Unlock()

	if err := f.send(registration(trnmReg, symbol)); err != nil {
		f.mu.Lock()
		delete(f.handlers, symbol)
		f.mu.Unlock()
		return fmt.Errorf("%w: register %s: %v", types.ErrFeedDisconnected, symbol, err)
	}
	logger.Info(ctx, "Subscribed to real-time executions", "symbol", symbol)
	return nil
}

func (f *Feed) Unsubscribe(ctx context.Context, symbol string) error {
	f.mu.Lock()
	delete(f.handlers, symbol)
	connected := f.conn != nil
	f.mu.Unlock()
	if !connected {
		return nil
	}
	return f.send(registration(trnmRemove, symbol))
}

// Close sends a close frame, drops the connection and waits for the reader.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.mu.Lock()
		conn := f.conn
		f.conn = nil
		f.mu.Unlock()
		if conn != nil {
			f.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			f.writeMu.Unlock()
			err = conn.Close()
		}
		f.wg.Wait()
	})
	return err
}

func (f *Feed) connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.done:
		return fmt.Errorf("%w: feed closed", types.ErrFeedDisconnected)
	default:
	}
	if f.conn != nil {
		return nil
	}

	token, err := f.tokens.Token(ctx)
	if err != nil {
		return err
	}
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", types.ErrFeedDisconnected, err)
	}
	if err := login(conn, token); err != nil {
		conn.Close()
		return err
	}

	f.conn = conn
	f.wg.Add(1)
	go f.readLoop(conn)
	return nil
}

// login sends the token and waits for the LOGIN reply, answering pings on the way.
func login(conn *websocket.Conn, token string) error {
	deadline := time.Now().Add(loginTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(map[string]string{"trnm": trnmLogin, "token": token}); err != nil {
		return fmt.Errorf("%w: login write: %v", types.ErrFeedDisconnected, err)
	}
	_ = conn.SetReadDeadline(deadline)
	defer func() {
		_ = conn.SetReadDeadline(time.Time{})
		_ = conn.SetWriteDeadline(time.Time{})
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: login read: %v", types.ErrFeedDisconnected, err)
		}
		frame := gjson.ParseBytes(msg)
		switch frame.Get("trnm").String() {
		case trnmPing:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return fmt.Errorf("%w: ping reply: %v", types.ErrFeedDisconnected, err)
			}
		case trnmLogin:
			if rc := frame.Get("return_code").Int(); rc != 0 {
				return fmt.Errorf("kiwoom websocket login rejected: code %d: %s", rc, frame.Get("return_msg").String())
			}
			return nil
		}
	}
}

func (f *Feed) send(v any) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (f *Feed) sendRaw(msg []byte) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	defer f.wg.Done()
	ctx := context.Background()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
			default:
				logger.ErrorWithErr(ctx, "Market feed disconnected; push path stopped",
					fmt.Errorf("%w: %v", types.ErrFeedDisconnected, err))
				f.mu.Lock()
				if f.conn == conn {
					f.conn = nil
				}
				f.mu.Unlock()
			}
			return
		}
		f.dispatch(ctx, msg)
	}
}

func (f *Feed) dispatch(ctx context.Context, msg []byte) {
	frame := gjson.ParseBytes(msg)
	trnm := frame.Get("trnm").String()
	if logger.IsDebugEnabled() {
		logger.Debug(ctx, "Feed frame", "trnm", trnm, "bytes", len(msg), "items", frame.Get("data.#").Int())
	}
	switch trnm {
	case trnmPing:
		if err := f.sendRaw(msg); err != nil {
			logger.Warn(ctx, "Failed to answer feed ping", "error", err)
		}
	case trnmReal:
		frame.Get("data").ForEach(func(_, item gjson.Result) bool {
			f.deliver(item)
			return true
		})
	case trnmReg, trnmRemove:
		if rc := frame.Get("return_code").Int(); rc != 0 {
			logger.Warn(ctx, "Feed registration rejected",
				"trnm", trnm,
				"code", rc,
				"message", frame.Get("return_msg").String(),
			)
		}
	}
}

func (f *Feed) deliver(item gjson.Result) {
	symbol := item.Get("item").String()
	values := item.Get("values")
	price := pricing.ParsePrice(values.Get(fieldCurrentPrice).String())
	if symbol == "" || price <= 0 {
		return
	}

	f.mu.Lock()
	h := f.handlers[symbol]
	f.mu.Unlock()
	if h == nil {
		return
	}

	raw := make(map[string]string)
	values.ForEach(func(k, v gjson.Result) bool {
		raw[k.String()] = v.String()
		return true
	})
	h(symbol, price, raw)
}
