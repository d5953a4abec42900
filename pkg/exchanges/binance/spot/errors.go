package spot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"consensus-trader/pkg/exchanges/common"

	bncommon "github.com/adshao/go-binance/v2/common"
)

// Venue error codes that signal an overloaded or unreachable venue rather
// than a rejected request.
var transientCodes = map[int64]bool{
	-1000: true, // UNKNOWN
	-1001: true, // DISCONNECTED
	-1003: true, // TOO_MANY_REQUESTS
	-1006: true, // UNEXPECTED_RESP
	-1007: true, // TIMEOUT
	-1008: true, // SERVER_BUSY
}

func classifyStatus(op string, status int, body []byte) error {
	var apiErr struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)

	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests ||
		status == http.StatusTeapot || transientCodes[apiErr.Code] {
		return &common.TransientNetworkError{Op: op, Err: fmt.Errorf("status %d: %s", status, string(body))}
	}
	msg := apiErr.Msg
	if msg == "" {
		msg = string(body)
	}
	return &common.ExchangeRejection{Status: status, Code: apiErr.Code, Message: msg}
}

// classifyLibError maps go-binance failures onto the common taxonomy.
func classifyLibError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *bncommon.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.Code] {
			return &common.TransientNetworkError{Op: op, Err: apiErr}
		}
		return &common.ExchangeRejection{Status: http.StatusBadRequest, Code: apiErr.Code, Message: apiErr.Message}
	}
	return &common.TransientNetworkError{Op: op, Err: err}
}
