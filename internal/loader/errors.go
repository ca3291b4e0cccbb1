package loader

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/page-loader/internal/policy/outdir"
)

// Kind classifies a DownloadError.
type Kind string

// Error kinds reported by DownloadPage.
const (
	KindRestrictedPath Kind = "restricted_path"
	KindHTTPStatus     Kind = "http_status"
	KindConnectivity   Kind = "connectivity"
	KindResourceFetch  Kind = "resource_fetch"
	KindFilesystem     Kind = "filesystem"
	KindProcessing     Kind = "processing"
)

// ErrBodyTooLarge is returned by a Fetcher whose response exceeded its
// configured size cap.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// HTTPStatusError reports a response outside the 2xx range.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.StatusCode, e.URL)
}

// ConnectivityError reports a request that never produced a response.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// FilesystemError reports a local directory or file failure.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error at %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ResourceFetchError wraps the failure of a single resource download.
type ResourceFetchError struct {
	URL string
	Err error
}

func (e *ResourceFetchError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.URL, e.Err)
}

func (e *ResourceFetchError) Unwrap() error { return e.Err }

// DownloadError is returned by DownloadPage for every failure.
type DownloadError struct {
	URL   string
	Kind  Kind
	State State
	Err   error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func newDownloadError(rawURL string, state State, err error) *DownloadError {
	return &DownloadError{URL: rawURL, Kind: classify(err), State: state, Err: err}
}

func classify(err error) Kind {
	var (
		restricted   *outdir.RestrictedPathError
		resourceErr  *ResourceFetchError
		statusErr    *HTTPStatusError
		connectErr   *ConnectivityError
		filesystemEr *FilesystemError
	)
	switch {
	case errors.As(err, &restricted):
		return KindRestrictedPath
	case errors.As(err, &resourceErr):
		return KindResourceFetch
	case errors.As(err, &statusErr):
		return KindHTTPStatus
	case errors.As(err, &connectErr):
		return KindConnectivity
	case errors.As(err, &filesystemEr):
		return KindFilesystem
	default:
		return KindProcessing
	}
}
