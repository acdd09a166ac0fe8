package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

// parseBody decodes a provider response, keeping numbers as json.Number so
// prices survive as lossless decimal strings.
func parseBody(name Name, body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &MalformedError{Source: name, Err: err}
	}
	return nil
}

// numString renders a decoded JSON value as a decimal string. Providers
// disagree on whether prices arrive as strings or numbers.
func numString(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), true
	case string:
		if n == "" {
			return "", false
		}
		return n, true
	}
	return "", false
}

// mapHTTPError translates transport-level failures into adapter errors.
// 401/403 means the key was rejected; 404 means the upstream has no such
// instrument. Everything else passes through for the caller's taxonomy
// (429/5xx already exhausted their retries inside the limiter).
func mapHTTPError(name Name, p pair.Pair, err error) error {
	var st *httpclient.StatusError
	if !errors.As(err, &st) {
		return err
	}
	switch st.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &UnauthorizedError{Source: name, Reason: "api key rejected"}
	case http.StatusNotFound:
		return &PriceNotFoundError{Source: name, Pair: p}
	}
	return err
}
