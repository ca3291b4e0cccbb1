package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
)

// FetchObserver is told about every HTTP fetch the loader issues. A zero
// code means no response was received.
type FetchObserver interface {
	ObserveFetch(site string, code int)
}

// Download summarizes a completed resource fetch.
type Download struct {
	StatusCode int
	Bytes      int64
}

// ResourceFetcher downloads single resources into a Store.
type ResourceFetcher struct {
	fetcher  Fetcher
	store    Store
	limiter  Limiter
	observer FetchObserver
}

// NewResourceFetcher builds a ResourceFetcher. limiter and observer may be nil.
func NewResourceFetcher(fetcher Fetcher, store Store, limiter Limiter, observer FetchObserver) *ResourceFetcher {
	return &ResourceFetcher{fetcher: fetcher, store: store, limiter: limiter, observer: observer}
}

// FetchResource GETs res.URL and writes the raw body to res.DiskPath,
// replacing any existing file. There is no retry and a partially written
// file is left in place. Every failure is a *ResourceFetchError.
func (f *ResourceFetcher) FetchResource(ctx context.Context, res Resource) (Download, error) {
	resp, err := fetchChecked(ctx, f.fetcher, f.limiter, f.observer, res.URL)
	if err != nil {
		return Download{StatusCode: resp.StatusCode}, &ResourceFetchError{URL: res.URL, Err: err}
	}
	n, err := f.store.WriteFile(ctx, res.DiskPath, bytes.NewReader(resp.Body))
	if err != nil {
		return Download{StatusCode: resp.StatusCode}, &ResourceFetchError{
			URL: res.URL,
			Err: &FilesystemError{Path: res.DiskPath, Err: err},
		}
	}
	return Download{StatusCode: resp.StatusCode, Bytes: n}, nil
}

// fetchChecked waits on the limiter, fetches rawURL and turns transport
// failures and non-2xx responses into typed errors. An oversized body is
// passed through as ErrBodyTooLarge rather than a connectivity failure.
func fetchChecked(
	ctx context.Context,
	fetcher Fetcher,
	limiter Limiter,
	observer FetchObserver,
	rawURL string,
) (Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx, rawURL); err != nil {
			return Response{}, &ConnectivityError{URL: rawURL, Err: err}
		}
	}
	resp, err := fetcher.Fetch(ctx, rawURL)
	if observer != nil {
		observer.ObserveFetch(siteOf(rawURL), resp.StatusCode)
	}
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return resp, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		return resp, &ConnectivityError{URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
