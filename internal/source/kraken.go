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

const krakenBaseURL = "https://api.kraken.com"

// krakenSource fetches spot tickers from Kraken.
//
//	GET /0/public/Ticker?pair=XBTUSD
//	→ {"error":[],"result":{"XXBTZUSD":{"c":["67890.10000","0.01"],...}}}
//
// Kraken calls bitcoin XBT and answers under its own canonical pair name
// (XXBTZUSD for a XBTUSD request), so the result is read as the first entry
// of the result map rather than by the requested key. Application errors
// arrive in the error array of a 200 response.
type krakenSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newKraken(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(krakenBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &krakenSource{cfg: cfg, client: client}, nil
}

func (s *krakenSource) Name() Name    { return Kraken }
func (s *krakenSource) Enabled() bool { return s.cfg.Enabled }

func krakenAsset(sym string) string {
	up := strings.ToUpper(sym)
	if up == "BTC" {
		return "XBT"
	}
	return up
}

func (s *krakenSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	wirePair := krakenAsset(p.Base) + krakenAsset(p.Quote)
	resp, err := s.client.Get(ctx, "/0/public/Ticker", url.Values{
		"pair": {wirePair},
	})
	if err != nil {
		return pair.Quote{}, mapHTTPError(Kraken, p, err)
	}

	var envelope struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"`
		} `json:"result"`
	}
	if err := parseBody(Kraken, resp.Body, &envelope); err != nil {
		return pair.Quote{}, err
	}

	if len(envelope.Error) > 0 {
		msg := strings.Join(envelope.Error, "; ")
		if strings.Contains(msg, "Unknown asset pair") {
			return pair.Quote{}, &PriceNotFoundError{Source: Kraken, Pair: p}
		}
		return pair.Quote{}, &APIError{Source: Kraken, Msg: msg}
	}

	for _, ticker := range envelope.Result {
		if len(ticker.C) == 0 || ticker.C[0] == "" {
			break
		}
		return quoteAt(Kraken, p, ticker.C[0], time.Now()), nil
	}
	return pair.Quote{}, &PriceNotFoundError{Source: Kraken, Pair: p}
}
