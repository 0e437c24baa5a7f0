package kiwoom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

type fakeAPI struct {
	tokenCalls atomic.Int32
	lastAPIID  atomic.Value
	lastAuth   atomic.Value
	lastOrder  atomic.Value
	orderReply string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode token body: %v", err)
		}
		if body["grant_type"] != "client_credentials" || body["appkey"] != "app" || body["secretkey"] != "secret" {
			w.Write([]byte(`{"return_code":3,"return_msg":"bad credentials"}`))
			return
		}
		w.Write([]byte(`{"token":"tok-1","expires_dt":"20991231235959","return_code":0,"return_msg":"ok"}`))
	})
	mux.HandleFunc(orderPath, func(w http.ResponseWriter, r *http.Request) {
		f.lastAPIID.Store(r.Header.Get("api-id"))
		f.lastAuth.Store(r.Header.Get("authorization"))
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode order body: %v", err)
		}
		f.lastOrder.Store(req)
		w.Write([]byte(f.orderReply))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI, mode string) *Client {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Params{
		Mode:      mode,
		BaseURL:   srv.URL,
		AppKey:    "app",
		SecretKey: "secret",
	})
}

func TestTokenIsCached(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "LIVE")
	ctx := context.Background()

	tok, err := c.Token(ctx)
	assert.NoError(t, err)
	assert.Equal(t, tok, "tok-1")

	tok, err = c.Token(ctx)
	assert.NoError(t, err)
	assert.Equal(t, tok, "tok-1")
	assert.Equal(t, api.tokenCalls.Load(), int32(1))
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "LIVE")
	c.now = func() time.Time { return time.Date(2099, 12, 31, 23, 59, 30, 0, time.UTC) }

	_, err := c.Token(context.Background())
	assert.NoError(t, err)
	_, err = c.Token(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, api.tokenCalls.Load(), int32(2))
}

func TestTokenRejected(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "LIVE")
	c.p.SecretKey = "wrong"

	_, err := c.Token(context.Background())
	assert.Error(t, err)
}

func TestTokenMissingCredentials(t *testing.T) {
	c := NewClient(Params{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Token(context.Background())
	assert.Error(t, err)
}

func TestPostNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Params{BaseURL: srv.URL})
	_, err := c.post(context.Background(), orderPath, nil, map[string]string{})
	assert.Error(t, err)
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Params{
		BaseURL:        srv.URL,
		AppKey:         "app",
		SecretKey:      "secret",
		RequestTimeout: 50 * time.Millisecond,
	})
	start := time.Now()
	_, err := c.Token(context.Background())
	assert.Error(t, err)
	assert.True(t, time.Since(start) < time.Second)
}

func TestBuyMarketRequest(t *testing.T) {
	api := &fakeAPI{orderReply: `{"ord_no":"0000123","dmst_stex_tp":"KRX","return_code":0,"return_msg":"accepted"}`}
	gw := NewGateway(newTestClient(t, api, "LIVE"))

	reply, err := gw.BuyMarket(context.Background(), "005930", 98)
	assert.NoError(t, err)
	assert.Equal(t, reply.OrderID, "0000123")
	assert.Equal(t, reply.Exchange, "KRX")
	assert.Equal(t, reply.Message, "accepted")

	assert.Equal(t, api.lastAPIID.Load(), any(apiIDBuy))
	assert.Equal(t, api.lastAuth.Load(), any("Bearer tok-1"))
	want := orderRequest{Exchange: "KRX", Symbol: "005930", Quantity: "98", TradeType: tradeTypeMarket}
	if diff := cmp.Diff(want, api.lastOrder.Load().(orderRequest)); diff != "" {
		t.Errorf("order body mismatch (-want +got):\n%s", diff)
	}
}

func TestSellLimitRequest(t *testing.T) {
	api := &fakeAPI{orderReply: `{"ord_no":"0000124","return_code":0,"return_msg":"accepted"}`}
	gw := NewGateway(newTestClient(t, api, "LIVE"))

	reply, err := gw.SellLimit(context.Background(), "005930", 98, 76_500)
	assert.NoError(t, err)
	assert.Equal(t, reply.OrderID, "0000124")
	assert.Equal(t, reply.Exchange, "KRX")

	assert.Equal(t, api.lastAPIID.Load(), any(apiIDSell))
	want := orderRequest{Exchange: "KRX", Symbol: "005930", Quantity: "98", Price: "76500", TradeType: tradeTypeLimit}
	if diff := cmp.Diff(want, api.lastOrder.Load().(orderRequest)); diff != "" {
		t.Errorf("order body mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderRejectedHasNoOrderID(t *testing.T) {
	api := &fakeAPI{orderReply: `{"return_code":20,"return_msg":"insufficient deposit"}`}
	gw := NewGateway(newTestClient(t, api, "LIVE"))

	reply, err := gw.BuyMarket(context.Background(), "005930", 98)
	assert.NoError(t, err)
	assert.Equal(t, reply.OrderID, "")
	assert.Equal(t, reply.Message, "insufficient deposit")
}

func TestDryRunSendsNothing(t *testing.T) {
	api := &fakeAPI{}
	gw := NewGateway(newTestClient(t, api, "DRY_RUN"))

	reply, err := gw.BuyMarket(context.Background(), "005930", 98)
	assert.NoError(t, err)
	assert.True(t, len(reply.OrderID) > len("SIM-"))
	assert.Equal(t, reply.OrderID[:4], "SIM-")
	assert.Equal(t, api.tokenCalls.Load(), int32(0))
	assert.Nil(t, api.lastOrder.Load())
}
