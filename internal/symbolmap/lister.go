package symbolmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/quotefeed/quotefeed/internal/httpclient"
)

// HTTPLister fetches the coin list from the CoinGecko REST API.
//
//	GET /api/v3/coins/list
//	→ [{"id":"bitcoin","symbol":"btc","name":"Bitcoin"},...]
type HTTPLister struct {
	Client *httpclient.Client
}

func (l *HTTPLister) ListCoins(ctx context.Context) ([]Coin, error) {
	resp, err := l.Client.Get(ctx, "/api/v3/coins/list", nil)
	if err != nil {
		return nil, fmt.Errorf("symbolmap: fetch coin list: %w", err)
	}

	var coins []Coin
	if err := json.NewDecoder(bytes.NewReader(resp.Body)).Decode(&coins); err != nil {
		return nil, fmt.Errorf("symbolmap: parse coin list: %w", err)
	}
	return coins, nil
}
