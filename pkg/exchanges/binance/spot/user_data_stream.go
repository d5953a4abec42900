package spot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mailru/easyjson/jlexer"

	"consensus-trader/pkg/exchanges/common"
)

const userDataStreamPath = "/api/v3/userDataStream"

// CreateListenKey opens a user data stream. Only the API key is sent; the
// endpoint is not signed.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	body, err := c.listenKeyCall(ctx, http.MethodPost, "")
	if err != nil {
		return "", err
	}
	var key string
	in := jlexer.Lexer{Data: body}
	in.Delim('{')
	for !in.IsDelim('}') {
		field := in.UnsafeFieldName(false)
		in.WantColon()
		if field == "listenKey" {
			key = in.String()
		} else {
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if err := in.Error(); err != nil {
		return "", fmt.Errorf("decode listen key: %w", err)
	}
	if key == "" {
		return "", &common.ExchangeRejection{Status: http.StatusOK, Message: "empty listen key"}
	}
	return key, nil
}

// KeepAliveListenKey extends a listen key by another 60 minutes.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	_, err := c.listenKeyCall(ctx, http.MethodPut, listenKey)
	return err
}

// CloseListenKey ends a user data stream.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	_, err := c.listenKeyCall(ctx, http.MethodDelete, listenKey)
	return err
}

func (c *Client) listenKeyCall(ctx context.Context, method, listenKey string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("binance: API key required")
	}
	if method != http.MethodPost && listenKey == "" {
		return nil, &common.InputValidationError{Field: "listenKey", Reason: "empty"}
	}
	endpoint := c.baseURL + userDataStreamPath
	if listenKey != "" {
		endpoint += "?" + url.Values{"listenKey": {listenKey}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.do(req, method+" userDataStream")
}
