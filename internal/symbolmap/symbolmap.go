// Package symbolmap maintains the ticker-symbol to CoinGecko coin-id
// mapping. The full coin list is refreshed on a cron schedule and swapped
// in under an RWMutex so lookups never block on a refresh.
package symbolmap

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// Coin is one entry of the upstream coin list.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Lister fetches the full coin list. internal/symbolmap's HTTPLister is the
// production implementation; tests supply a stub.
type Lister interface {
	ListCoins(ctx context.Context) ([]Coin, error)
}

// pinned resolves ambiguous tickers to the canonical coin. The upstream
// list is full of copycat tokens reusing major symbols, so these always win
// over whatever the list says.
var pinned = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"usdt":  "tether",
	"usdc":  "usd-coin",
	"bnb":   "binancecoin",
	"sol":   "solana",
	"xrp":   "ripple",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"trx":   "tron",
	"dot":   "polkadot",
	"ltc":   "litecoin",
	"matic": "matic-network",
	"avax":  "avalanche-2",
	"link":  "chainlink",
}

// ServiceConfig configures the symbol map service.
type ServiceConfig struct {
	Lister Lister
	// RefreshSchedule is a standard 5-field cron expression.
	// Default: daily at 03:30.
	RefreshSchedule string
}

// Service provides symbol→id resolution with hot-reloading via RWMutex.
type Service struct {
	mu  sync.RWMutex
	ids map[string]string // nil until first load

	lister      Lister
	cron        *cron.Cron
	refreshMu   sync.Mutex // serializes RefreshNow calls
	lifeCtx     context.Context
	lifeCancel  context.CancelFunc
	cronEntryID cron.EntryID
}

// NewService creates the service and schedules periodic refreshes.
func NewService(cfg ServiceConfig) *Service {
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = "30 3 * * *"
	}
	c := cron.New()
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	s := &Service{
		lister:     cfg.Lister,
		cron:       c,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}

	entryID, err := c.AddFunc(cfg.RefreshSchedule, func() {
		if err := s.RefreshNow(); err != nil {
			log.Printf("[symbolmap] scheduled refresh failed: %v", err)
		}
	})
	if err != nil {
		log.Printf("[symbolmap] invalid cron expression %q: %v", cfg.RefreshSchedule, err)
	} else {
		s.cronEntryID = entryID
	}
	return s
}

// Start triggers the initial load in the background and starts the cron
// scheduler. Until the first load completes, Resolve serves the pinned set
// only, so startup never blocks on the upstream.
func (s *Service) Start() {
	go func() {
		if err := s.RefreshNow(); err != nil {
			log.Printf("[symbolmap] initial load failed: %v", err)
		}
	}()
	s.cron.Start()
}

// Stop stops the scheduler and cancels any in-flight refresh.
func (s *Service) Stop() {
	if s.lifeCancel != nil {
		s.lifeCancel()
	}
	s.cron.Stop()
}

// Resolve returns the coin id for a ticker symbol, case-insensitively.
// Pinned symbols resolve even before the first list load.
func (s *Service) Resolve(symbol string) (string, bool) {
	key := strings.ToLower(symbol)
	if id, ok := pinned[key]; ok {
		return id, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[key]
	return id, ok
}

// Size returns the number of mapped symbols.
func (s *Service) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// RefreshNow fetches the coin list and hot-swaps the mapping. For symbols
// listed more than once the first occurrence wins; the upstream orders
// established coins before knock-offs. Serialized via refreshMu.
func (s *Service) RefreshNow() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ctx := context.Background()
	if s.lifeCtx != nil {
		ctx = s.lifeCtx
	}

	coins, err := s.lister.ListCoins(ctx)
	if err != nil {
		return err
	}

	ids := make(map[string]string, len(coins))
	for _, c := range coins {
		sym := strings.ToLower(c.Symbol)
		if sym == "" || c.ID == "" {
			continue
		}
		if _, seen := ids[sym]; !seen {
			ids[sym] = c.ID
		}
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	log.Printf("[symbolmap] loaded %d symbols", len(ids))
	return nil
}
