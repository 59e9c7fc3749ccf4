// Package transport provides the raw HTTP exchange with the Pandora RPC
// endpoint. Retry policy lives in the protocol client, not here.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout = 30 * time.Second
	userAgent      = "pandora-cli/1.0"
	contentType    = "text/plain"
)

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc endpoint returned status %d: %s", e.Code, e.Status)
}

// Transport issues HTTP POST requests against an RPC host.
type Transport struct {
	client *resty.Client
}

// New creates a Transport with sensible defaults.
func New() *Transport {
	return &Transport{
		client: resty.New().
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Content-Type", contentType),
	}
}

// Post sends body to host/path with the given query parameters, over
// https when secure is set and plain http otherwise. Returns the raw
// response body. Non-200 responses yield a *StatusError; the body is
// always fully drained so the connection can be reused.
func (t *Transport) Post(ctx context.Context, host, path string, query url.Values, body []byte, secure bool) ([]byte, error) {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s%s", scheme, host, path)

	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", endpoint, err)
	}

	if resp.StatusCode() != 200 {
		log.Debug().Int("status", resp.StatusCode()).Str("endpoint", endpoint).Msg("RPC request rejected")
		return nil, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}

	return resp.Body(), nil
}
