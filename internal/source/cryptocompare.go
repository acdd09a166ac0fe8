package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

const cryptocompareBaseURL = "https://min-api.cryptocompare.com"

// cryptocompareSource fetches prices from CryptoCompare.
//
//	GET /data/price?fsym=BTC&tsyms=USD
//	→ {"USD":67890.12}
//
// Errors come back in a 200 body as {"Response":"Error","Message":"..."}.
// The API key travels in the Authorization header, never in the URL.
type cryptocompareSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newCryptoCompare(cfg config.SourceConfig, deps Deps) (Source, error) {
	b := clientBuilder(cryptocompareBaseURL, cfg, deps)
	if cfg.APIKey != "" {
		b = b.Header("Authorization", "Apikey "+cfg.APIKey)
	}
	client, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &cryptocompareSource{cfg: cfg, client: client}, nil
}

func (s *cryptocompareSource) Name() Name    { return CryptoCompare }
func (s *cryptocompareSource) Enabled() bool { return s.cfg.Enabled }

func (s *cryptocompareSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	if s.cfg.APIKey == "" {
		return pair.Quote{}, &UnauthorizedError{Source: CryptoCompare, Reason: "api key not configured"}
	}

	quoteSym := strings.ToUpper(p.Quote)
	resp, err := s.client.Get(ctx, "/data/price", url.Values{
		"fsym":  {strings.ToUpper(p.Base)},
		"tsyms": {quoteSym},
	})
	if err != nil {
		return pair.Quote{}, mapHTTPError(CryptoCompare, p, err)
	}

	var body map[string]any
	if err := parseBody(CryptoCompare, resp.Body, &body); err != nil {
		return pair.Quote{}, err
	}

	if r, _ := body["Response"].(string); r == "Error" {
		msg, _ := body["Message"].(string)
		if strings.Contains(msg, "market does not exist") || strings.Contains(msg, "no data") {
			return pair.Quote{}, &PriceNotFoundError{Source: CryptoCompare, Pair: p}
		}
		if strings.Contains(strings.ToLower(msg), "api key") {
			return pair.Quote{}, &UnauthorizedError{Source: CryptoCompare, Reason: msg}
		}
		return pair.Quote{}, &APIError{Source: CryptoCompare, Msg: msg}
	}

	price, ok := numString(body[quoteSym])
	if !ok {
		return pair.Quote{}, &PriceNotFoundError{Source: CryptoCompare, Pair: p}
	}
	return quoteAt(CryptoCompare, p, price, time.Now()), nil
}
