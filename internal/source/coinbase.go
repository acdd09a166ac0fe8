package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

const coinbaseBaseURL = "https://api.coinbase.com"

// coinbaseSource fetches spot prices from Coinbase.
//
//	GET /v2/prices/BTC-USD/spot
//	→ {"data":{"base":"BTC","currency":"USD","amount":"67890.12"}}
//
// Unknown pairs come back as a plain 404.
type coinbaseSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newCoinbase(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(coinbaseBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &coinbaseSource{cfg: cfg, client: client}, nil
}

func (s *coinbaseSource) Name() Name    { return Coinbase }
func (s *coinbaseSource) Enabled() bool { return s.cfg.Enabled }

func (s *coinbaseSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	path := fmt.Sprintf("/v2/prices/%s-%s/spot", strings.ToUpper(p.Base), strings.ToUpper(p.Quote))
	resp, err := s.client.Get(ctx, path, nil)
	if err != nil {
		return pair.Quote{}, mapHTTPError(Coinbase, p, err)
	}

	var envelope struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := parseBody(Coinbase, resp.Body, &envelope); err != nil {
		return pair.Quote{}, err
	}
	if envelope.Data.Amount == "" {
		return pair.Quote{}, &PriceNotFoundError{Source: Coinbase, Pair: p}
	}
	return quoteAt(Coinbase, p, envelope.Data.Amount, time.Now()), nil
}
