package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/orchestrator"
	"github.com/quotefeed/quotefeed/internal/source"
)

// statusClientClosedRequest is the non-standard status nginx uses when the
// client goes away before a response is ready.
const statusClientClosedRequest = 499

func writeInvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", message)
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	writeInvalidArgument(w, err.Error())
}

// quoteErrorStatus maps a fetch-path error to HTTP status and error code.
// Rate limit exhaustion (a 429 that survived all retries) is reported as
// 503 so callers back off; other surviving upstream statuses are 502.
func quoteErrorStatus(err error) (int, string) {
	var notFound *source.PriceNotFoundError
	var unauthorized *source.UnauthorizedError
	var disabled *source.DisabledError
	var unknown *source.NotFoundError
	var malformed *source.MalformedError
	var apiErr *source.APIError
	var timeout *orchestrator.TimeoutError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "PRICE_NOT_FOUND"
	case errors.As(err, &unknown):
		return http.StatusNotFound, "SOURCE_NOT_FOUND"
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized, "SOURCE_UNAUTHORIZED"
	case errors.As(err, &disabled):
		return http.StatusBadRequest, "SOURCE_DISABLED"
	case errors.As(err, &timeout):
		return http.StatusRequestTimeout, "REQUEST_TIMEOUT"
	case errors.As(err, &malformed):
		return http.StatusBadGateway, "UPSTREAM_MALFORMED"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}

	if se, ok := httpclient.AsStatusError(err); ok {
		if se.StatusCode == http.StatusTooManyRequests {
			return http.StatusServiceUnavailable, "RATE_LIMITED"
		}
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	// The caller hung up mid-fetch; that is their doing, not a server
	// fault. 499 follows nginx's convention for client-closed requests.
	if errors.Is(err, context.Canceled) {
		return statusClientClosedRequest, "CLIENT_CLOSED_REQUEST"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeQuoteError renders a fetch-path error in the standard envelope.
func writeQuoteError(w http.ResponseWriter, err error) {
	status, code := quoteErrorStatus(err)
	msg := "internal server error"
	if code != "INTERNAL" {
		msg = err.Error()
	}
	WriteError(w, status, code, msg)
}
