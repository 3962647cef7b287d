package acquire

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/retry"
	"github.com/productbridge/productbridge/internal/validation"
)

const (
	// DefaultUserAgent mimics a desktop browser; many manufacturer sites
	// refuse obvious bots.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	// DefaultMaxBodyBytes caps downloaded pages.
	DefaultMaxBodyBytes = 5 * 1024 * 1024

	maxRedirects = 10
)

// ErrBodyTooLarge is returned when a page exceeds the body limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// ErrBlockedAddress is returned when a host resolves to a loopback, private,
// link-local or unspecified address.
var ErrBlockedAddress = errors.New("address is not publicly routable")

// Page is a fetched document.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher retrieves a page. Implementations return a *models.UserError on
// failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// FetcherOptions controls HTTP fetching behaviour.
type FetcherOptions struct {
	UserAgent    string
	MaxBodyBytes int64
	// Transport overrides the HTTP transport; tests use it to mock responses.
	Transport http.RoundTripper
	// Retry overrides the fetch policy preset.
	Retry  retry.Options
	Logger *slog.Logger
}

// PageFetcher implements Fetcher over net/http with the fetch retry policy.
type PageFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	retry        retry.Options
	logger       *slog.Logger
}

// NewPageFetcher constructs a PageFetcher. Redirect targets are checked
// against the same host rules as the original URL.
func NewPageFetcher(opts FetcherOptions) *PageFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := opts.Transport
	if transport == nil {
		// No proxy: the dial guard has to see the real peer address.
		transport = &http.Transport{
			DialContext:           newGuardedDialer().DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if _, err := validation.ValidateURL(req.URL.String()); err != nil {
				return err
			}
			return nil
		},
	}

	retryOpts := opts.Retry
	if retryOpts.ShouldRetry == nil {
		retryOpts.ShouldRetry = retryableFetch
	}

	return &PageFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		retry:        retryOpts,
		logger:       opts.Logger,
	}
}

// Fetch downloads url through the fetch policy and maps failures to user
// errors.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	opts := f.retry
	observe := opts.OnRetry
	opts.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.logger.Warn("page fetch failed, retrying",
			"url", url,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if observe != nil {
			observe(attempt, err, delay)
		}
	}

	result := retry.ExecutePolicy(ctx, retry.PolicyFetch, opts, func(ctx context.Context) (*Page, error) {
		return f.fetchOnce(ctx, url)
	})
	if result.Success {
		return result.Value, nil
	}

	f.logger.Error("page fetch failed",
		"url", url,
		"attempts", result.Attempts,
		"elapsed", result.Elapsed,
		"error", result.Err,
	)
	return nil, classifyFetchError(result.Err)
}

func (f *PageFetcher) fetchOnce(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, retry.NewStatusError(resp.StatusCode, fmt.Errorf("fetch %s", url))
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:         url,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *PageFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, nil
}

// newGuardedDialer checks every resolved address before connecting, so DNS
// names pointing at internal networks are refused as well as literal IPs.
func newGuardedDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   guardDial,
	}
}

func guardDial(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: unparsable address %q", ErrBlockedAddress, address)
	}
	if validation.IsBlockedAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

// retryableFetch extends the fetch classifier: user errors raised while
// following redirects, refused addresses and oversized bodies are final.
func retryableFetch(err error) bool {
	var ue *models.UserError
	if errors.As(err, &ue) || errors.Is(err, ErrBodyTooLarge) || errors.Is(err, ErrBlockedAddress) {
		return false
	}
	return retry.RetryableFetch(err)
}

// classifyFetchError maps a failed fetch to the url.* user error taxonomy.
func classifyFetchError(err error) *models.UserError {
	var ue *models.UserError
	if errors.As(err, &ue) {
		return ue
	}

	if status, ok := retry.StatusCode(err); ok {
		switch status {
		case http.StatusForbidden:
			return models.NewUserError(models.CodeURLBlocked, "The website refused the request.").
				WithSuggestion("Some sites block automated access. Copy the specifications and paste them as text.").
				WithDetail("status", status)
		case http.StatusNotFound:
			return models.NewUserError(models.CodeURLNotFound, "The page was not found.").
				WithSuggestion("Check that the URL is correct and the product page still exists.").
				WithDetail("status", status)
		case http.StatusTooManyRequests:
			return models.NewUserError(models.CodeURLRateLimited, "The website is rate limiting requests.").
				WithSuggestion("Wait a few minutes and try again.").
				WithDetail("status", status)
		default:
			return models.NewUserError(models.CodeURLHTTPError, fmt.Sprintf("The website returned HTTP %d.", status)).
				WithSuggestion("Try again later, or paste the specifications as text.").
				WithDetail("status", status)
		}
	}

	if errors.Is(err, ErrBlockedAddress) {
		return models.NewUserError(models.CodeURLBlockedHost, "This address points at a private or local network.").
			WithSuggestion("Use the public product page on the manufacturer's website.")
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return models.NewUserError(models.CodeURLFetchFailed, "The page is too large to process.").
			WithSuggestion("Paste the specification section as text instead.")
	}
	if !errors.Is(err, context.Canceled) && retry.IsTimeout(err) {
		return models.NewUserError(models.CodeURLTimeout, "The website took too long to respond.").
			WithSuggestion("Try again in a moment, or paste the specifications as text.")
	}
	return models.NewUserError(models.CodeURLFetchFailed, "The page could not be downloaded.").
		WithSuggestion("Check your connection and the URL, then try again.")
}
