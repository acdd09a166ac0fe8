package stream

import (
	"sync"
	"testing"

	"github.com/quotefeed/quotefeed/internal/pair"
)

type fakeTransport struct {
	mu       sync.Mutex
	handlers Handlers
	frames   []any
	connects int
	sendErr  error
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	f.connects++
	reconnected := f.connects > 1
	f.mu.Unlock()
	f.handlers.OnOpen(reconnected)
	return nil
}

func (f *fakeTransport) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeTransport) Close() error {
	f.handlers.OnClose()
	return nil
}

func (f *fakeTransport) binanceFrames(method string) []binanceFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []binanceFrame
	for _, v := range f.frames {
		if bf, ok := v.(binanceFrame); ok && bf.Method == method {
			out = append(out, bf)
		}
	}
	return out
}

func newFakeAdapter(t *testing.T, batchSize int) (*Adapter, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	a := NewAdapter(&binanceDialect{}, func(h Handlers) Transport {
		ft.handlers = h
		return ft
	}, batchSize)
	return a, ft
}

func btcUSD() pair.Pair { return pair.Pair{Base: "BTC", Quote: "USD"} }

func TestAdapter_IdentifierSubscribedAndUnsubscribedOnce(t *testing.T) {
	a, ft := newFakeAdapter(t, 0)

	onQuote := func(pair.Quote) {}
	id1, err := a.Subscribe(btcUSD(), onQuote, nil)
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	id2, err := a.Subscribe(btcUSD(), onQuote, nil)
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}

	if got := len(ft.binanceFrames("SUBSCRIBE")); got != 1 {
		t.Errorf("subscribe frames after two subscriptions: got %d, want 1", got)
	}

	if err := a.Unsubscribe(id1); err != nil {
		t.Fatalf("unsubscribe 1: %v", err)
	}
	if got := len(ft.binanceFrames("UNSUBSCRIBE")); got != 0 {
		t.Errorf("unsubscribe frames while a subscription remains: got %d, want 0", got)
	}

	if err := a.Unsubscribe(id2); err != nil {
		t.Fatalf("unsubscribe 2: %v", err)
	}
	if got := len(ft.binanceFrames("UNSUBSCRIBE")); got != 1 {
		t.Errorf("unsubscribe frames after last subscription: got %d, want 1", got)
	}

	// Resubscribing the same pair goes to the wire exactly once again.
	if _, err := a.Subscribe(btcUSD(), onQuote, nil); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if got := len(ft.binanceFrames("SUBSCRIBE")); got != 2 {
		t.Errorf("subscribe frames after resubscribe: got %d, want 2", got)
	}
}

func TestAdapter_SubscribeManyBatchesIntoOneFrame(t *testing.T) {
	a, ft := newFakeAdapter(t, 0)

	pairs := []pair.Pair{
		{Base: "BTC", Quote: "USD"},
		{Base: "ETH", Quote: "USD"},
		{Base: "SOL", Quote: "USD"},
	}
	ids, err := a.SubscribeMany(pairs, func(pair.Quote) {}, nil)
	if err != nil {
		t.Fatalf("SubscribeMany: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("subscription ids: got %d, want 3", len(ids))
	}

	frames := ft.binanceFrames("SUBSCRIBE")
	if len(frames) != 1 {
		t.Fatalf("subscribe frames: got %d, want 1", len(frames))
	}
	if len(frames[0].Params) != 3 {
		t.Errorf("identifiers in frame: got %d, want 3", len(frames[0].Params))
	}
}

func TestAdapter_SubscribeManyRespectsBatchSize(t *testing.T) {
	a, ft := newFakeAdapter(t, 2)

	pairs := []pair.Pair{
		{Base: "BTC", Quote: "USD"},
		{Base: "ETH", Quote: "USD"},
		{Base: "SOL", Quote: "USD"},
		{Base: "ADA", Quote: "USD"},
		{Base: "DOT", Quote: "USD"},
	}
	if _, err := a.SubscribeMany(pairs, func(pair.Quote) {}, nil); err != nil {
		t.Fatalf("SubscribeMany: %v", err)
	}

	frames := ft.binanceFrames("SUBSCRIBE")
	if len(frames) != 3 {
		t.Fatalf("subscribe frames with batch size 2: got %d, want 3", len(frames))
	}
}

func TestAdapter_ReconnectResubscribesFullSetOnce(t *testing.T) {
	a, ft := newFakeAdapter(t, 0)

	pairs := make([]pair.Pair, 0, 50)
	for _, base := range []string{"BTC", "ETH", "SOL", "ADA", "DOT"} {
		for _, quote := range []string{"USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD", "SGD", "SEK"} {
			pairs = append(pairs, pair.Pair{Base: base, Quote: quote})
		}
	}
	pairs = pairs[:50]

	if _, err := a.SubscribeMany(pairs, func(pair.Quote) {}, nil); err != nil {
		t.Fatalf("SubscribeMany: %v", err)
	}
	before := a.SubscribedIdentifiers()
	framesBefore := len(ft.binanceFrames("SUBSCRIBE"))

	// Simulated drop and recovery.
	ft.handlers.OnOpen(true)

	after := a.SubscribedIdentifiers()
	if len(after) != len(before) {
		t.Errorf("identifier set after reconnect: got %d, want %d", len(after), len(before))
	}

	frames := ft.binanceFrames("SUBSCRIBE")
	if len(frames) != framesBefore+1 {
		t.Fatalf("resubscribe frames: got %d, want %d", len(frames)-framesBefore, 1)
	}
	if got := len(frames[len(frames)-1].Params); got != 50 {
		t.Errorf("identifiers in resubscribe frame: got %d, want 50", got)
	}
}

func TestAdapter_EmitFansOutToAllSubscriptionsOfIdentifier(t *testing.T) {
	a, _ := newFakeAdapter(t, 0)

	var mu sync.Mutex
	var got []string
	record := func(tag string) QuoteFunc {
		return func(q pair.Quote) {
			mu.Lock()
			got = append(got, tag+":"+q.Price)
			mu.Unlock()
		}
	}

	if _, err := a.Subscribe(btcUSD(), record("a"), nil); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := a.Subscribe(btcUSD(), record("b"), nil); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	if _, err := a.Subscribe(pair.Pair{Base: "ETH", Quote: "USD"}, record("c"), nil); err != nil {
		t.Fatalf("subscribe c: %v", err)
	}

	a.handleMessage([]byte(`{"e":"24hrTicker","E":1712345678000,"s":"BTCUSDT","c":"67890.12"}`))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("deliveries: got %d, want 2 (%v)", len(got), got)
	}
	for _, d := range got {
		if d != "a:67890.12" && d != "b:67890.12" {
			t.Errorf("unexpected delivery %q", d)
		}
	}
}

func TestAdapter_UnknownIdentifierIsDropped(t *testing.T) {
	a, _ := newFakeAdapter(t, 0)

	delivered := false
	if _, err := a.Subscribe(btcUSD(), func(pair.Quote) { delivered = true }, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	a.handleMessage([]byte(`{"e":"24hrTicker","E":1,"s":"DOGEUSDT","c":"0.1"}`))
	if delivered {
		t.Error("update for unsubscribed identifier must not be delivered")
	}
}
