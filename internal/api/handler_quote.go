package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quotefeed/quotefeed/internal/orchestrator"
	"github.com/quotefeed/quotefeed/internal/pair"
)

// QuoteService is the orchestration surface the quote handlers call.
type QuoteService interface {
	GetQuote(ctx context.Context, sourceName string, p pair.Pair) (pair.Quote, error)
	GetQuotes(ctx context.Context, sourceName string, pairs []pair.Pair) ([]orchestrator.Result, error)
}

// quoteBody is the wire form of a quote. The price stays a string so the
// upstream's decimal representation survives untouched; timestamps are
// unix milliseconds.
type quoteBody struct {
	Pair       [2]string `json:"pair"`
	Price      string    `json:"price"`
	ReceivedAt int64     `json:"receivedAt"`
}

func renderQuote(q pair.Quote) quoteBody {
	return quoteBody{
		Pair:       [2]string{q.Pair.Base, q.Pair.Quote},
		Price:      q.Price,
		ReceivedAt: q.ReceivedAt.UnixMilli(),
	}
}

// HandleGetQuote returns a handler for GET /quote/{source}/{base}/{quote}.
func HandleGetQuote(quotes QuoteService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := pair.New(r.PathValue("base"), r.PathValue("quote"))
		q, err := quotes.GetQuote(r.Context(), r.PathValue("source"), p)
		if err != nil {
			writeQuoteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, renderQuote(q))
	}
}

// batchRequest is the POST /quotes/{source} body.
type batchRequest struct {
	Pairs [][2]string `json:"pairs"`
}

// batchItem is one positional outcome: a quote or an error, never both.
type batchItem struct {
	Pair  [2]string `json:"pair"`
	Price string    `json:"price,omitempty"`
	// ReceivedAt is omitted on error items.
	ReceivedAt *int64       `json:"receivedAt,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

type batchResponse struct {
	Quotes []batchItem `json:"quotes"`
}

// HandleBatchQuotes returns a handler for POST /quotes/{source}. The
// response carries one item per requested position, in request order;
// failures are reported per position instead of failing the batch.
func HandleBatchQuotes(quotes QuoteService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if len(req.Pairs) == 0 {
			writeInvalidArgument(w, "pairs must be a non-empty array")
			return
		}

		pairs := make([]pair.Pair, len(req.Pairs))
		for i, pq := range req.Pairs {
			p := pair.New(pq[0], pq[1])
			if err := p.Validate(); err != nil {
				writeInvalidArgument(w, err.Error())
				return
			}
			pairs[i] = p
		}

		results, err := quotes.GetQuotes(r.Context(), r.PathValue("source"), pairs)
		if err != nil {
			writeQuoteError(w, err)
			return
		}

		items := make([]batchItem, len(results))
		for i, res := range results {
			item := batchItem{Pair: [2]string{res.Pair.Base, res.Pair.Quote}}
			if res.Err != nil {
				_, code := quoteErrorStatus(res.Err)
				item.Error = &ErrorDetail{Code: code, Message: res.Err.Error()}
			} else {
				ms := res.Quote.ReceivedAt.UnixMilli()
				item.Price = res.Quote.Price
				item.ReceivedAt = &ms
			}
			items[i] = item
		}
		WriteJSON(w, http.StatusOK, batchResponse{Quotes: items})
	}
}
