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

const frankfurterBaseURL = "https://api.frankfurter.app"

// frankfurterSource fetches ECB reference rates from Frankfurter. Fiat FX
// only; crypto symbols answer 404.
//
//	GET /latest?from=USD&to=EUR
//	→ {"amount":1.0,"base":"USD","date":"2026-08-24","rates":{"EUR":0.9234}}
type frankfurterSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newFrankfurter(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(frankfurterBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &frankfurterSource{cfg: cfg, client: client}, nil
}

func (s *frankfurterSource) Name() Name    { return Frankfurter }
func (s *frankfurterSource) Enabled() bool { return s.cfg.Enabled }

func (s *frankfurterSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	quoteSym := strings.ToUpper(p.Quote)
	resp, err := s.client.Get(ctx, "/latest", url.Values{
		"from": {strings.ToUpper(p.Base)},
		"to":   {quoteSym},
	})
	if err != nil {
		return pair.Quote{}, mapHTTPError(Frankfurter, p, err)
	}

	var body struct {
		Rates map[string]any `json:"rates"`
	}
	if err := parseBody(Frankfurter, resp.Body, &body); err != nil {
		return pair.Quote{}, err
	}

	price, ok := numString(body.Rates[quoteSym])
	if !ok {
		return pair.Quote{}, &PriceNotFoundError{Source: Frankfurter, Pair: p}
	}
	return quoteAt(Frankfurter, p, price, time.Now()), nil
}
