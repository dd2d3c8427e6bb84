package hydra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// Response is the decoded outcome of one HTTP round trip: the parsed JSON
// body (nil for empty responses) plus the response headers.
type Response struct {
	Status int
	Header http.Header
	JSON   any
}

// DoFunc performs one HTTP request and returns the decoded body plus headers.
// The default implementation is NewTransport; callers may inject their own.
// Errors returned here propagate unchanged to the provider's caller.
type DoFunc func(ctx context.Context, req *Request) (*Response, error)

// TransportOptions configures the default transport.
type TransportOptions struct {
	// Client is the HTTP client to use. http.DefaultClient when nil.
	Client *http.Client

	// Token is a bearer credential forwarded on every request.
	Token string

	// Limiter optionally throttles outgoing requests client-side.
	Limiter *rate.Limiter

	// Logger logs one debug line per round trip. Null logger when nil.
	Logger hclog.Logger
}

// NewTransport returns the default DoFunc: a thin wrapper over net/http that
// speaks JSON-LD, forwards the bearer credential, and maps non-2xx responses
// to *APIError. It performs no retries.
func NewTransport(opts TransportOptions) DoFunc {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return func(ctx context.Context, req *Request) (*Response, error) {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
		if err != nil {
			return nil, err
		}
		for key, values := range req.Header {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
		httpReq.Header.Set("Accept", "application/ld+json")
		if opts.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+opts.Token)
		}

		logger.Debug("request", "method", req.Method, "url", req.URL.String())

		httpResp, err := client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return nil, decodeAPIError(httpResp.StatusCode, body)
		}

		resp := &Response{Status: httpResp.StatusCode, Header: httpResp.Header}
		if len(body) > 0 && isJSONContentType(httpResp.Header.Get("Content-Type")) {
			if err := json.Unmarshal(body, &resp.JSON); err != nil {
				return nil, fmt.Errorf("decode response body: %w", err)
			}
		}
		return resp, nil
	}
}

// decodeAPIError builds an *APIError from an error response, picking up the
// Hydra error description when the body carries one.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := NewAPIError(status, http.StatusText(status), "")
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}
	for _, key := range []string{"hydra:description", "description", "detail", "message"} {
		if detail, ok := payload[key].(string); ok && detail != "" {
			apiErr.Details = detail
			break
		}
	}
	if title, ok := payload["hydra:title"].(string); ok && title != "" {
		apiErr.Message = title
	}
	return apiErr
}

func isJSONContentType(contentType string) bool {
	return strings.Contains(contentType, "json")
}
