// Package collyfetcher implements loader.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/page-loader/internal/loader"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// rawContentTypeHeader carries the server's Content-Type past colly, which
// transcodes bodies whose Content-Type names a non-UTF-8 charset and inflates
// bodies whose Content-Type mentions gzip.
const rawContentTypeHeader = "X-Page-Loader-Content-Type"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps response bodies in bytes; 0 means unlimited. Larger
	// bodies fail with loader.ErrBodyTooLarge instead of being truncated.
	MaxBodySize int
}

// Fetcher implements loader.Fetcher using the Colly collector. Bodies are
// returned byte for byte as the server sent them (after transport-level
// Content-Encoding); non-2xx responses come back with a nil error.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(readLimit(cfg.MaxBodySize)),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(&rawBodyTransport{base: newHTTPTransport()})
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. It is safe for concurrent
// use: every call runs on its own clone of the base collector.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (loader.Response, error) {
	var (
		result   loader.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return loader.Response{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	result *loader.Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *loader.Response,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		if limit := f.cfg.MaxBodySize; limit > 0 && len(r.Body) > limit {
			*fetchErr = fmt.Errorf("%w: limit is %d bytes", loader.ErrBodyTooLarge, limit)
			return
		}
		var headers http.Header
		if r.Headers != nil {
			headers = restoreContentType(r.Headers.Clone())
		}
		*result = loader.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}

// readLimit asks colly for one byte past the configured cap so an oversized
// body can be told apart from one that fits exactly.
func readLimit(maxBodySize int) int {
	if maxBodySize <= 0 {
		return 0
	}
	return maxBodySize + 1
}

// rawBodyTransport hides the Content-Type from colly's body post-processing.
// The original value is parked in rawContentTypeHeader and put back by
// restoreContentType.
type rawBodyTransport struct {
	base http.RoundTripper
}

func (t *rawBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	if values, ok := resp.Header["Content-Type"]; ok {
		resp.Header[rawContentTypeHeader] = values
		resp.Header.Del("Content-Type")
	}
	// Content-Encoding is already undone by the base transport; keep colly
	// from guessing at gzip from the path or media type.
	resp.Uncompressed = true
	return resp, nil
}

func restoreContentType(headers http.Header) http.Header {
	if values, ok := headers[rawContentTypeHeader]; ok {
		headers["Content-Type"] = values
		delete(headers, rawContentTypeHeader)
	}
	return headers
}
