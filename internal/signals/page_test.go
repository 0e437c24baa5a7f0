package signals

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"daytrader/internal/types"
)

const detectedPage = `<!doctype html>
<html><body>
<section>
  <h3>종목이름</h3><p>삼성전자</p>
  <h3>현재가</h3><p> 75,000원 </p>
  <h3>등락률</h3><p>+3.45%</p>
  <h3>매수가</h3><p>74,800원</p>
  <h3>손절가</h3><p>73,000원</p>
</section>
<section>
  <div><div>종목코드</div><div>005930</div></div>
  <div><div>시가총액</div><div>447조</div></div>
  <div><div>목표가</div><div>77,000원</div></div>
  <div><div>거래량</div><div></div></div>
</section>
</body></html>`

const waitingPage = `<!doctype html>
<html><body>
  <h3>종목이름</h3><p>-</p>
  <h3>현재가</h3><p>-</p>
</body></html>`

func servePage(t *testing.T, body *atomic.Value, status *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != 0 {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 5, 9, 1, 0, 0, types.KST)
}

func TestReadSnapshotDetected(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(detectedPage)
	srv := servePage(t, &body, &status)

	src := NewPageSource(srv.URL, Options{Now: fixedNow})
	ev, err := src.ReadSnapshot(context.Background())
	assert.NoError(t, err)
	assert.True(t, ev.HasData)
	assert.Equal(t, ev.Name, "삼성전자")
	assert.Equal(t, ev.Symbol, "005930")
	assert.Equal(t, ev.CurrentPriceText, "75,000원")
	assert.Equal(t, ev.ObservedAt, fixedNow())
	assert.Equal(t, ev.Fields[LabelChangeRate], "+3.45%")
	assert.Equal(t, ev.Fields[LabelTargetPrice], "77,000원")
	assert.Equal(t, ev.Fields[LabelVolume], "-")
}

func TestReadSnapshotWaiting(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(waitingPage)
	srv := servePage(t, &body, &status)

	src := NewPageSource(srv.URL, Options{Now: fixedNow})
	ev, err := src.ReadSnapshot(context.Background())
	assert.NoError(t, err)
	assert.False(t, ev.HasData)
	assert.Equal(t, ev.Symbol, "")

	// The same source picks up the detection once the page changes.
	body.Store(detectedPage)
	ev, err = src.ReadSnapshot(context.Background())
	assert.NoError(t, err)
	assert.True(t, ev.HasData)
}

func TestReadSnapshotServerError(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(detectedPage)
	status.Store(http.StatusInternalServerError)
	srv := servePage(t, &body, &status)

	src := NewPageSource(srv.URL, Options{})
	_, err := src.ReadSnapshot(context.Background())
	assert.True(t, errors.Is(err, types.ErrSignalUnavailable))

	status.Store(0)
	ev, err := src.ReadSnapshot(context.Background())
	assert.NoError(t, err)
	assert.True(t, ev.HasData)
}

func TestReadSnapshotGoneClosesSource(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(detectedPage)
	status.Store(http.StatusGone)
	srv := servePage(t, &body, &status)

	src := NewPageSource(srv.URL, Options{})
	_, err := src.ReadSnapshot(context.Background())
	assert.True(t, errors.Is(err, types.ErrSourceClosed))

	status.Store(0)
	_, err = src.ReadSnapshot(context.Background())
	assert.True(t, errors.Is(err, types.ErrSourceClosed))
}

func TestReadSnapshotAfterClose(t *testing.T) {
	src := NewPageSource("http://127.0.0.1:1/", Options{})
	assert.NoError(t, src.Close())

	_, err := src.ReadSnapshot(context.Background())
	assert.True(t, errors.Is(err, types.ErrSourceClosed))
}

func TestReadSnapshotCancelled(t *testing.T) {
	src := NewPageSource("http://127.0.0.1:1/", Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.ReadSnapshot(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
