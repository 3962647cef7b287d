// Package shopify talks to the Shopify Admin GraphQL API to store and read
// back extracted product content as metafields.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/retry"
)

// DefaultAPIVersion is the Admin API version used when none is configured.
const DefaultAPIVersion = "2024-10"

const maxResponseBytes = 2 << 20

// Options configures a Client.
type Options struct {
	ShopDomain        string
	AccessToken       string
	APIVersion        string
	RequestsPerSecond float64
	Burst             int
	// Endpoint overrides the GraphQL URL derived from ShopDomain.
	Endpoint   string
	HTTPClient *http.Client
	// Retry overrides the commerce policy preset.
	Retry  retry.Options
	Logger *slog.Logger
}

// Client is a rate-limited Admin GraphQL client.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retry       retry.Options
	logger      *slog.Logger
}

// NewClient creates a client for the configured shop.
func NewClient(opts Options) (*Client, error) {
	if opts.AccessToken == "" {
		return nil, errors.New("shopify access token is required")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		if opts.ShopDomain == "" {
			return nil, errors.New("shopify shop domain is required")
		}
		version := opts.APIVersion
		if version == "" {
			version = DefaultAPIVersion
		}
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", opts.ShopDomain, version)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Admin GraphQL leaks cost points per second; stay under it client side
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		endpoint:    endpoint,
		accessToken: opts.AccessToken,
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(limit, burst),
		retry:       opts.Retry,
		logger:      opts.Logger,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// GraphQLError reports top-level errors returned alongside a 200 response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "shopify graphql: " + strings.Join(e.Messages, "; ")
}

// execute runs one GraphQL operation through the commerce retry policy and
// decodes data into out.
func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]any, out any) (int, error) {
	logger := logging.FromContext(ctx, c.logger)

	opts := c.retry
	observe := opts.OnRetry
	opts.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("shopify call failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if observe != nil {
			observe(attempt, err, delay)
		}
	}

	result := retry.ExecutePolicy(ctx, retry.PolicyCommerce, opts, func(ctx context.Context) (json.RawMessage, error) {
		return c.post(ctx, query, variables)
	})
	if !result.Success {
		logger.Error("shopify call failed",
			"operation", operation,
			"attempts", result.Attempts,
			"elapsed", result.Elapsed,
			"error", result.Err,
		)
		return result.Attempts, result.Err
	}

	if out != nil {
		if err := json.Unmarshal(result.Value, out); err != nil {
			return result.Attempts, fmt.Errorf("failed to decode %s response: %w", operation, err)
		}
	}
	return result.Attempts, nil
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, retry.NewStatusError(resp.StatusCode, fmt.Errorf("shopify returned %s: %s", resp.Status, snippet(raw)))
	}

	var decoded graphQLResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(decoded.Errors) > 0 {
		messages := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			if e.Extensions.Code == "THROTTLED" {
				return nil, retry.NewStatusError(http.StatusTooManyRequests, errors.New("shopify throttled the request"))
			}
			messages = append(messages, e.Message)
		}
		return nil, &GraphQLError{Messages: messages}
	}

	return decoded.Data, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
