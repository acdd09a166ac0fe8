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

const okxBaseURL = "https://www.okx.com"

// okxSource fetches spot tickers from OKX.
//
//	GET /api/v5/market/ticker?instId=BTC-USDT
//	→ {"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"67890.1",...}]}
//
// OKX wraps everything in a code/msg envelope; code "51001" means the
// instrument does not exist. USD pairs trade as USDT.
type okxSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newOKX(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(okxBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &okxSource{cfg: cfg, client: client}, nil
}

func (s *okxSource) Name() Name    { return OKX }
func (s *okxSource) Enabled() bool { return s.cfg.Enabled }

func okxInstID(p pair.Pair) string {
	return tetherize(p.Base) + "-" + tetherize(p.Quote)
}

func (s *okxSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	resp, err := s.client.Get(ctx, "/api/v5/market/ticker", url.Values{
		"instId": {okxInstID(p)},
	})
	if err != nil {
		return pair.Quote{}, mapHTTPError(OKX, p, err)
	}

	var envelope struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			InstID string `json:"instId"`
			Last   string `json:"last"`
		} `json:"data"`
	}
	if err := parseBody(OKX, resp.Body, &envelope); err != nil {
		return pair.Quote{}, err
	}

	if envelope.Code != "0" {
		if envelope.Code == "51001" || strings.Contains(envelope.Msg, "doesn't exist") {
			return pair.Quote{}, &PriceNotFoundError{Source: OKX, Pair: p}
		}
		return pair.Quote{}, &APIError{Source: OKX, Msg: envelope.Code + " " + envelope.Msg}
	}
	if len(envelope.Data) == 0 || envelope.Data[0].Last == "" {
		return pair.Quote{}, &PriceNotFoundError{Source: OKX, Pair: p}
	}
	return quoteAt(OKX, p, envelope.Data[0].Last, time.Now()), nil
}
