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

const alphavantageBaseURL = "https://www.alphavantage.co"

// alphavantageSource fetches exchange rates from Alpha Vantage.
//
//	GET /query?function=CURRENCY_EXCHANGE_RATE&from_currency=BTC&to_currency=USD&apikey=K
//	→ {"Realtime Currency Exchange Rate":{"5. Exchange Rate":"67890.12000000",...}}
//
// Alpha Vantage reports every problem with a 200: "Error Message" for bad
// symbols, "Note"/"Information" for throttling and key issues.
type alphavantageSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newAlphaVantage(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(alphavantageBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &alphavantageSource{cfg: cfg, client: client}, nil
}

func (s *alphavantageSource) Name() Name    { return AlphaVantage }
func (s *alphavantageSource) Enabled() bool { return s.cfg.Enabled }

func (s *alphavantageSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	if s.cfg.APIKey == "" {
		return pair.Quote{}, &UnauthorizedError{Source: AlphaVantage, Reason: "api key not configured"}
	}

	resp, err := s.client.Get(ctx, "/query", url.Values{
		"function":      {"CURRENCY_EXCHANGE_RATE"},
		"from_currency": {strings.ToUpper(p.Base)},
		"to_currency":   {strings.ToUpper(p.Quote)},
		"apikey":        {s.cfg.APIKey},
	})
	if err != nil {
		return pair.Quote{}, mapHTTPError(AlphaVantage, p, err)
	}

	var body struct {
		Rate struct {
			ExchangeRate string `json:"5. Exchange Rate"`
		} `json:"Realtime Currency Exchange Rate"`
		ErrorMessage string `json:"Error Message"`
		Note         string `json:"Note"`
		Information  string `json:"Information"`
	}
	if err := parseBody(AlphaVantage, resp.Body, &body); err != nil {
		return pair.Quote{}, err
	}

	switch {
	case body.ErrorMessage != "":
		return pair.Quote{}, &PriceNotFoundError{Source: AlphaVantage, Pair: p}
	case body.Note != "":
		return pair.Quote{}, &APIError{Source: AlphaVantage, Msg: body.Note}
	case body.Information != "":
		if strings.Contains(strings.ToLower(body.Information), "api key") {
			return pair.Quote{}, &UnauthorizedError{Source: AlphaVantage, Reason: body.Information}
		}
		return pair.Quote{}, &APIError{Source: AlphaVantage, Msg: body.Information}
	case body.Rate.ExchangeRate == "":
		return pair.Quote{}, &PriceNotFoundError{Source: AlphaVantage, Pair: p}
	}
	return quoteAt(AlphaVantage, p, body.Rate.ExchangeRate, time.Now()), nil
}
