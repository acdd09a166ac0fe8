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

const exchangerateHostBaseURL = "https://api.exchangerate.host"

// exchangerateHostSource fetches FX rates from exchangerate.host.
//
//	GET /latest?base=USD&symbols=EUR[&access_key=K]
//	→ {"success":true,"base":"USD","rates":{"EUR":0.9234}}
//
// The access key is optional; when the service wants one it answers 200
// with success=false and a coded error object.
type exchangerateHostSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newExchangerateHost(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(exchangerateHostBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &exchangerateHostSource{cfg: cfg, client: client}, nil
}

func (s *exchangerateHostSource) Name() Name    { return ExchangerateHost }
func (s *exchangerateHostSource) Enabled() bool { return s.cfg.Enabled }

func (s *exchangerateHostSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	quoteSym := strings.ToUpper(p.Quote)
	params := url.Values{
		"base":    {strings.ToUpper(p.Base)},
		"symbols": {quoteSym},
	}
	if s.cfg.APIKey != "" {
		params.Set("access_key", s.cfg.APIKey)
	}

	resp, err := s.client.Get(ctx, "/latest", params)
	if err != nil {
		return pair.Quote{}, mapHTTPError(ExchangerateHost, p, err)
	}

	var body struct {
		Success *bool `json:"success"`
		Error   *struct {
			Code int    `json:"code"`
			Type string `json:"type"`
			Info string `json:"info"`
		} `json:"error"`
		Rates map[string]any `json:"rates"`
	}
	if err := parseBody(ExchangerateHost, resp.Body, &body); err != nil {
		return pair.Quote{}, err
	}

	if body.Success != nil && !*body.Success {
		if body.Error != nil {
			if body.Error.Code == 101 || strings.Contains(body.Error.Type, "access_key") {
				return pair.Quote{}, &UnauthorizedError{Source: ExchangerateHost, Reason: body.Error.Type}
			}
			return pair.Quote{}, &APIError{Source: ExchangerateHost, Msg: body.Error.Type + ": " + body.Error.Info}
		}
		return pair.Quote{}, &APIError{Source: ExchangerateHost, Msg: "success=false"}
	}

	price, ok := numString(body.Rates[quoteSym])
	if !ok {
		return pair.Quote{}, &PriceNotFoundError{Source: ExchangerateHost, Pair: p}
	}
	return quoteAt(ExchangerateHost, p, price, time.Now()), nil
}
