package stream

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quotefeed/quotefeed/internal/pair"
)

// Transport is the connection surface the adapter drives; WSClient is the
// production implementation.
type Transport interface {
	Connect() error
	Send(v any) error
	Close() error
}

// TransportFactory builds the transport with the adapter's event handlers
// wired in.
type TransportFactory func(h Handlers) Transport

// QuoteFunc receives decoded quotes for a subscription.
type QuoteFunc func(q pair.Quote)

// ErrorFunc receives subscription-level errors.
type ErrorFunc func(err error)

// Subscription is one consumer's interest in a pair's stream.
type Subscription struct {
	ID         string
	Pair       pair.Pair
	Identifier string
	OnQuote    QuoteFunc
	OnError    ErrorFunc
}

// Adapter multiplexes subscriptions over one vendor stream. Identifiers
// are refcounted: a wire subscribe goes out when the first subscription
// for an identifier arrives, a wire unsubscribe when the last one leaves.
// On reconnect the full identifier set is resubscribed in batched frames.
type Adapter struct {
	dialect   Dialect
	conn      Transport
	batchSize int

	mu            sync.Mutex
	subs          map[string]*Subscription
	subscribed    map[string]struct{} // identifiers on the wire
	idToPair      map[string]pair.Pair
	refs          map[string]int // identifier → live subscriptions
	onConnChange  func(State)
	lastConnState State
}

// NewAdapter wires the dialect to a transport. batchSize caps identifiers
// per subscribe frame; 0 means all in one.
func NewAdapter(dialect Dialect, factory TransportFactory, batchSize int) *Adapter {
	a := &Adapter{
		dialect:    dialect,
		batchSize:  batchSize,
		subs:       make(map[string]*Subscription),
		subscribed: make(map[string]struct{}),
		idToPair:   make(map[string]pair.Pair),
		refs:       make(map[string]int),
	}
	a.conn = factory(Handlers{
		OnMessage: a.handleMessage,
		OnOpen:    a.handleOpen,
		OnError:   a.handleError,
		OnClose:   a.handleClose,
	})
	return a
}

// SourceName returns the dialect's source.
func (a *Adapter) SourceName() string { return string(a.dialect.Name()) }

// Connect opens the underlying transport.
func (a *Adapter) Connect() error { return a.conn.Connect() }

// Close tears the stream down.
func (a *Adapter) Close() error { return a.conn.Close() }

// Subscribe adds one subscription for p. The wire subscribe is issued only
// when p's identifier is not already on the wire.
func (a *Adapter) Subscribe(p pair.Pair, onQuote QuoteFunc, onError ErrorFunc) (string, error) {
	ids, err := a.SubscribeMany([]pair.Pair{p}, onQuote, func(pair.Pair) ErrorFunc { return onError })
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SubscribeMany subscribes a set of pairs, accumulating all new wire
// identifiers into batched subscribe frames. Returns one subscription id
// per pair, in order.
func (a *Adapter) SubscribeMany(pairs []pair.Pair, onQuote QuoteFunc, onError func(pair.Pair) ErrorFunc) ([]string, error) {
	a.mu.Lock()

	subIDs := make([]string, 0, len(pairs))
	var newIdentifiers []string
	var added []*Subscription
	for _, p := range pairs {
		identifier, err := a.dialect.Identifier(p)
		if err != nil {
			a.rollback(added, nil)
			a.mu.Unlock()
			return nil, fmt.Errorf("stream: %s: %w", a.dialect.Name(), err)
		}

		sub := &Subscription{
			ID:         uuid.NewString(),
			Pair:       p,
			Identifier: identifier,
			OnQuote:    onQuote,
		}
		if onError != nil {
			sub.OnError = onError(p)
		}

		a.subs[sub.ID] = sub
		a.idToPair[identifier] = p
		if a.refs[identifier] == 0 {
			if _, onWire := a.subscribed[identifier]; !onWire {
				newIdentifiers = append(newIdentifiers, identifier)
			}
		}
		a.refs[identifier]++
		added = append(added, sub)
		subIDs = append(subIDs, sub.ID)
	}
	a.mu.Unlock()

	if len(newIdentifiers) > 0 {
		if err := a.sendFrames(a.dialect.SubscribeFrames, newIdentifiers); err != nil {
			a.mu.Lock()
			a.rollback(added, nil)
			a.mu.Unlock()
			return nil, err
		}
		a.mu.Lock()
		for _, id := range newIdentifiers {
			a.subscribed[id] = struct{}{}
		}
		a.mu.Unlock()
	}
	return subIDs, nil
}

// rollback undoes bookkeeping for subscriptions that never made the wire.
// Caller holds a.mu.
func (a *Adapter) rollback(added []*Subscription, _ []string) {
	for _, sub := range added {
		delete(a.subs, sub.ID)
		a.refs[sub.Identifier]--
		if a.refs[sub.Identifier] <= 0 {
			delete(a.refs, sub.Identifier)
			if _, onWire := a.subscribed[sub.Identifier]; !onWire {
				delete(a.idToPair, sub.Identifier)
			}
		}
	}
}

// Unsubscribe removes one subscription; the wire unsubscribe goes out only
// when no other subscription references the identifier.
func (a *Adapter) Unsubscribe(subID string) error {
	a.mu.Lock()
	sub, ok := a.subs[subID]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("stream: unknown subscription %s", subID)
	}
	delete(a.subs, subID)

	identifier := sub.Identifier
	a.refs[identifier]--
	last := a.refs[identifier] <= 0
	if last {
		delete(a.refs, identifier)
		delete(a.subscribed, identifier)
		delete(a.idToPair, identifier)
	}
	a.mu.Unlock()

	if last {
		return a.sendFrames(a.dialect.UnsubscribeFrames, []string{identifier})
	}
	return nil
}

// UnsubscribeAll drops every subscription and unsubscribes all wire
// identifiers in batched frames.
func (a *Adapter) UnsubscribeAll() error {
	a.mu.Lock()
	identifiers := make([]string, 0, len(a.subscribed))
	for id := range a.subscribed {
		identifiers = append(identifiers, id)
	}
	a.subs = make(map[string]*Subscription)
	a.subscribed = make(map[string]struct{})
	a.idToPair = make(map[string]pair.Pair)
	a.refs = make(map[string]int)
	a.mu.Unlock()

	if len(identifiers) == 0 {
		return nil
	}
	return a.sendFrames(a.dialect.UnsubscribeFrames, identifiers)
}

// SubscribedIdentifiers returns a snapshot of the wire identifier set.
func (a *Adapter) SubscribedIdentifiers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.subscribed))
	for id := range a.subscribed {
		out = append(out, id)
	}
	return out
}

// OnConnectionStateChange registers a callback for transport state
// transitions observed by the adapter.
func (a *Adapter) OnConnectionStateChange(fn func(State)) {
	a.mu.Lock()
	a.onConnChange = fn
	a.mu.Unlock()
}

// sendFrames renders identifiers into frames (chunked by batchSize) and
// sends them.
func (a *Adapter) sendFrames(render func([]string) []any, identifiers []string) error {
	chunk := a.batchSize
	if chunk <= 0 {
		chunk = len(identifiers)
	}
	for start := 0; start < len(identifiers); start += chunk {
		end := min(start+chunk, len(identifiers))
		for _, frame := range render(identifiers[start:end]) {
			if err := a.conn.Send(frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleOpen resubscribes the full identifier set after a reconnect,
// before anything else uses the connection. On failure the subscribed set
// is left intact so the next reconnect retries the same set.
func (a *Adapter) handleOpen(reconnected bool) {
	a.notifyState(StateOpen)
	if !reconnected {
		return
	}

	a.mu.Lock()
	identifiers := make([]string, 0, len(a.subscribed))
	for id := range a.subscribed {
		identifiers = append(identifiers, id)
	}
	a.mu.Unlock()
	if len(identifiers) == 0 {
		return
	}

	if err := a.sendFrames(a.dialect.SubscribeFrames, identifiers); err != nil {
		log.Printf("[stream] %s: resubscribe after reconnect: %v", a.dialect.Name(), err)
		return
	}
	log.Printf("[stream] %s: resubscribed %d identifiers after reconnect",
		a.dialect.Name(), len(identifiers))
}

// handleMessage decodes a frame and fans each update out to the
// subscriptions of its identifier.
func (a *Adapter) handleMessage(data []byte) {
	updates := a.dialect.Parse(data)
	if len(updates) == 0 {
		return
	}

	for _, u := range updates {
		a.mu.Lock()
		p, known := a.idToPair[u.Identifier]
		var targets []*Subscription
		if known {
			for _, sub := range a.subs {
				if sub.Identifier == u.Identifier {
					targets = append(targets, sub)
				}
			}
		}
		a.mu.Unlock()
		if !known {
			continue
		}

		receivedAt := u.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		q := pair.Quote{
			Pair:       p,
			Source:     string(a.dialect.Name()),
			Price:      u.Price,
			ReceivedAt: receivedAt,
		}
		for _, sub := range targets {
			if sub.OnQuote != nil {
				sub.OnQuote(q)
			}
		}
	}
}

func (a *Adapter) handleError(err error) {
	log.Printf("[stream] %s: %v", a.dialect.Name(), err)
	a.mu.Lock()
	subs := make([]*Subscription, 0, len(a.subs))
	for _, sub := range a.subs {
		subs = append(subs, sub)
	}
	a.mu.Unlock()
	for _, sub := range subs {
		if sub.OnError != nil {
			sub.OnError(err)
		}
	}
}

func (a *Adapter) handleClose() {
	a.notifyState(StateClosed)
}

func (a *Adapter) notifyState(s State) {
	a.mu.Lock()
	fn := a.onConnChange
	a.lastConnState = s
	a.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
