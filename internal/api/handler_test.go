package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market_engine/internal/domain"
	"market_engine/internal/engine"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeEngine struct {
	mu        sync.Mutex
	pair      string
	orders    []domain.Order
	placeErr  error
	selectErr error
	dismissed bool
}

func (f *fakeEngine) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Snapshot{
		State:        engine.StateLive,
		SelectedPair: f.pair,
		Instruments:  []domain.Instrument{{ID: "bitcoin", Symbol: "BTC", Price: 52835.42}},
		OpenOrders:   append([]domain.Order(nil), f.orders...),
	}
}

func (f *fakeEngine) SelectPair(_ context.Context, pairID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return f.selectErr
	}
	f.pair = strings.ToUpper(pairID)
	return nil
}

func (f *fakeEngine) PlaceOrder(_ context.Context, side domain.Side, pairID string, price, qty float64) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return domain.Order{}, f.placeErr
	}
	o := domain.Order{
		ID:       fmt.Sprintf("o-%d", len(f.orders)+1),
		PairID:   pairID,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Reserved: price * qty,
		Status:   domain.OrderStatusNew,
	}
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeEngine) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.orders {
		if o.ID == id {
			f.orders = append(f.orders[:i], f.orders[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown order %s", domain.ErrInvalidOrder, id)
}

func (f *fakeEngine) DismissNotice() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = true
}

type connCounter struct{ n atomic.Int32 }

func (c *connCounter) IncrementConnections() { c.n.Add(1) }
func (c *connCounter) DecrementConnections() { c.n.Add(-1) }

func newTestServer(eng *fakeEngine, reg prometheus.Gatherer, conns ConnCounter) *Server {
	cfg := ServerConfig{Addr: ":0", StreamInterval: 20 * time.Millisecond}
	return NewServer(cfg, NewHandler(eng, nil), reg, conns, nil)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, resp
}

func TestHandler_Snapshot(t *testing.T) {
	s := newTestServer(&fakeEngine{pair: "BTC-USDT"}, nil, nil)

	rec, resp := do(t, s, http.MethodGet, "/api/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["state"] != "Live" || data["selected_pair"] != "BTC-USDT" {
		t.Errorf("snapshot = %v", data)
	}
	if !strings.Contains(rec.Body.String(), "52835.42") {
		t.Errorf("instrument missing from body: %s", rec.Body.String())
	}
}

func TestHandler_SelectPair(t *testing.T) {
	eng := &fakeEngine{pair: "BTC-USDT"}
	s := newTestServer(eng, nil, nil)

	rec, _ := do(t, s, http.MethodPost, "/api/pair", `{"pair":"eth-usdt"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if eng.Snapshot().SelectedPair != "ETH-USDT" {
		t.Errorf("pair = %q", eng.Snapshot().SelectedPair)
	}

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing pair", `{}`, nil, http.StatusBadRequest},
		{"too short", `{"pair":"X"}`, nil, http.StatusBadRequest},
		{"bad json", `{"pair":`, nil, http.StatusBadRequest},
		{"engine stopped", `{"pair":"SOL-USDT"}`, domain.ErrNotRunning, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng.mu.Lock()
			eng.selectErr = tt.err
			eng.mu.Unlock()

			rec, _ := do(t, s, http.MethodPost, "/api/pair", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestHandler_PlaceOrder(t *testing.T) {
	eng := &fakeEngine{pair: "BTC-USDT"}
	s := newTestServer(eng, nil, nil)

	t.Run("defaults side and pair", func(t *testing.T) {
		rec, resp := do(t, s, http.MethodPost, "/api/orders", `{"price":100,"quantity":2}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
		data := resp.Data.(map[string]any)
		if data["side"] != "buy" || data["pair_id"] != "BTC-USDT" || data["reserved"] != 200.0 {
			t.Errorf("order = %+v", data)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		rec, resp := do(t, s, http.MethodPost, "/api/orders", `{"side":"hold","price":0,"quantity":-1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		errs, _ := resp.Data.([]any)
		if len(errs) != 3 {
			t.Fatalf("got %d validation errors: %s", len(errs), rec.Body.String())
		}
		codes := map[string]bool{}
		for _, e := range errs {
			codes[e.(map[string]any)["code"].(string)] = true
		}
		if !codes["ERR_ONEOF"] || !codes["ERR_GT"] {
			t.Errorf("codes = %v", codes)
		}
	})

	errTests := []struct {
		err    error
		status int
	}{
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: bad", domain.ErrInvalidOrder), http.StatusBadRequest},
		{&domain.InvariantViolation{Rule: "PORTFOLIO_BALANCE_MISMATCH"}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range errTests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			eng.mu.Lock()
			eng.placeErr = tt.err
			eng.mu.Unlock()
			defer func() {
				eng.mu.Lock()
				eng.placeErr = nil
				eng.mu.Unlock()
			}()

			rec, _ := do(t, s, http.MethodPost, "/api/orders", `{"side":"sell","price":1,"quantity":1}`)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestHandler_CancelOrderAndDismiss(t *testing.T) {
	eng := &fakeEngine{pair: "BTC-USDT"}
	s := newTestServer(eng, nil, nil)

	if rec, _ := do(t, s, http.MethodPost, "/api/orders", `{"price":10,"quantity":1}`); rec.Code != http.StatusCreated {
		t.Fatalf("place status = %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodDelete, "/api/orders/o-1", ""); rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodDelete, "/api/orders/o-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("second cancel status = %d", rec.Code)
	}

	if rec, _ := do(t, s, http.MethodPost, "/api/notice/dismiss", ""); rec.Code != http.StatusOK {
		t.Errorf("dismiss status = %d", rec.Code)
	}
	if !eng.dismissed {
		t.Error("notice not dismissed")
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_engine_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := newTestServer(&fakeEngine{}, reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "market_engine_test_total 1") {
		t.Errorf("metric missing:\n%s", rec.Body.String())
	}
}

func TestServer_Stream(t *testing.T) {
	eng := &fakeEngine{pair: "BTC-USDT"}
	conns := &connCounter{}
	s := newTestServer(eng, nil, conns)

	srv := httptest.NewServer(s.Echo())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !strings.Contains(string(msg), "BTC-USDT") {
			t.Errorf("message %d lacks the selected pair: %s", i, msg)
		}
	}
	if n := conns.n.Load(); n != 1 {
		t.Errorf("open connections = %d, want 1", n)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for conns.n.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := conns.n.Load(); n != 0 {
		t.Errorf("open connections after close = %d", n)
	}
}

func TestServer_StreamKeepsListenOnlyClient(t *testing.T) {
	pongWait, pingPeriod := streamPongWait, streamPingPeriod
	streamPongWait, streamPingPeriod = 300*time.Millisecond, 100*time.Millisecond
	t.Cleanup(func() { streamPongWait, streamPingPeriod = pongWait, pingPeriod })

	s := newTestServer(&fakeEngine{pair: "BTC-USDT"}, nil, nil)
	srv := httptest.NewServer(s.Echo())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// only read; the default ping handler answers the server's pings
	end := time.Now().Add(3 * streamPongWait)
	frames := 0
	for time.Now().Before(end) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("stream dropped after %d snapshots: %v", frames, err)
		}
		frames++
	}
	if frames < 2 {
		t.Errorf("got %d snapshots", frames)
	}
}
