package source

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

const finnhubBaseURL = "https://finnhub.io"

// finnhubSource fetches quotes from Finnhub.
//
//	GET /api/v1/quote?symbol=BINANCE:BTCUSDT&token=K
//	→ {"c":67890.12,"h":...,"l":...,"o":...,"pc":...,"t":1712345678}
//
// Crypto symbols are exchange-prefixed; pairs are routed to the Binance
// listing with the usual USD→USDT rewrite. An unknown symbol answers with
// all-zero fields rather than an error.
type finnhubSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newFinnhub(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(finnhubBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &finnhubSource{cfg: cfg, client: client}, nil
}

func (s *finnhubSource) Name() Name    { return Finnhub }
func (s *finnhubSource) Enabled() bool { return s.cfg.Enabled }

func (s *finnhubSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	if s.cfg.APIKey == "" {
		return pair.Quote{}, &UnauthorizedError{Source: Finnhub, Reason: "api token not configured"}
	}

	resp, err := s.client.Get(ctx, "/api/v1/quote", url.Values{
		"symbol": {"BINANCE:" + tetherize(p.Base) + tetherize(p.Quote)},
		"token":  {s.cfg.APIKey},
	})
	if err != nil {
		return pair.Quote{}, mapHTTPError(Finnhub, p, err)
	}

	var body struct {
		Current   json.Number `json:"c"`
		Timestamp int64       `json:"t"`
	}
	if err := parseBody(Finnhub, resp.Body, &body); err != nil {
		return pair.Quote{}, err
	}
	if body.Current == "" || body.Current.String() == "0" {
		return pair.Quote{}, &PriceNotFoundError{Source: Finnhub, Pair: p}
	}

	receivedAt := time.Now()
	if body.Timestamp > 0 {
		receivedAt = time.Unix(body.Timestamp, 0)
	}
	return quoteAt(Finnhub, p, body.Current.String(), receivedAt), nil
}
