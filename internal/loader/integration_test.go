package loader_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/page-loader/internal/fetcher/colly"
	"github.com/JakeFAU/page-loader/internal/loader"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff}

type site struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newSite(t *testing.T, routes map[string]string) *site {
	t.Helper()
	return newTypedSite(t, routes, nil)
}

// newTypedSite serves routes with an explicit Content-Type per path. Paths
// missing from types get one from their extension, so net/http never sniffs.
func newTypedSite(t *testing.T, routes, types map[string]string) *site {
	t.Helper()
	s := &site{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		contentType, ok := types[r.URL.Path]
		if !ok {
			contentType = contentTypeByExt[path.Ext(r.URL.Path)]
		}
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

var contentTypeByExt = map[string]string{
	".png": "image/png",
	".css": "text/css; charset=utf-8",
	".js":  "text/javascript; charset=utf-8",
}

// hostSlug mirrors how the server's hostname appears in derived names; the
// port is not part of them.
func hostSlug(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return strings.ReplaceAll(u.Hostname(), ".", "-")
}

func newLoader(t *testing.T, concurrency int) *loader.Loader {
	t.Helper()
	l, err := loader.New(loader.Config{Concurrency: concurrency}, loader.Dependencies{
		Fetcher: collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
	}, nil)
	require.NoError(t, err)
	return l
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestDownloadPageSavesPageAndAssets(t *testing.T) {
	t.Parallel()

	const foreign = "https://cdn.example.org/x.png"
	page := `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" media="all" href="/assets/app.css">
<link rel="canonical" href="/courses">
<script src="/packs/js/runtime.js"></script>
</head><body>
<img src="/assets/logo.png" alt="logo">
<img src="` + foreign + `">
</body></html>`
	s := newSite(t, map[string]string{
		"/courses":             page,
		"/assets/logo.png":     string(pngBytes),
		"/assets/app.css":      "body { color: red; }",
		"/packs/js/runtime.js": "console.log(1)",
	})

	out := t.TempDir()
	result, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL+"/courses", out)
	require.NoError(t, err)

	slug := hostSlug(t, s.srv.URL)
	assetDir := slug + "-courses_files"
	assert.Equal(t, out, result.OutputDir)
	assert.Equal(t, filepath.Join(out, slug+"-courses.html"), result.FilePath)
	require.Len(t, result.Resources, 3)

	assert.Equal(t, pngBytes, readFile(t, filepath.Join(out, assetDir, slug+"-assets-logo.png")))
	assert.Equal(t, "body { color: red; }", string(readFile(t, filepath.Join(out, assetDir, slug+"-assets-app.css"))))
	assert.Equal(t, "console.log(1)", string(readFile(t, filepath.Join(out, assetDir, slug+"-packs-js-runtime.js"))))

	html := string(readFile(t, result.FilePath))
	assert.Contains(t, html, fmt.Sprintf(`src="%s/%s-assets-logo.png"`, assetDir, slug))
	assert.Contains(t, html, fmt.Sprintf(`href="%s/%s-assets-app.css"`, assetDir, slug))
	assert.Contains(t, html, fmt.Sprintf(`src="%s/%s-packs-js-runtime.js"`, assetDir, slug))
	assert.Contains(t, html, `href="/courses"`)
	assert.Contains(t, html, `src="`+foreign+`"`)

	entries, err := os.ReadDir(filepath.Join(out, assetDir))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDownloadPageWithoutResources(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": "<html><body><p>plain</p></body></html>"})
	out := t.TempDir()
	result, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL, out)
	require.NoError(t, err)

	slug := hostSlug(t, s.srv.URL)
	assert.Equal(t, filepath.Join(out, slug+".html"), result.FilePath)
	assert.Contains(t, string(readFile(t, result.FilePath)), "<p>plain</p>")
	info, err := os.Stat(filepath.Join(out, slug+"_files"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDownloadPageIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/page":  `<html><body><img src="/a.png"></body></html>`,
		"/a.png": string(pngBytes),
	})
	out := t.TempDir()
	l := newLoader(t, 0)

	first, err := l.DownloadPage(context.Background(), s.srv.URL+"/page", out)
	require.NoError(t, err)
	firstHTML := readFile(t, first.FilePath)

	second, err := l.DownloadPage(context.Background(), s.srv.URL+"/page", out)
	require.NoError(t, err)
	assert.Equal(t, first.FilePath, second.FilePath)
	assert.Equal(t, firstHTML, readFile(t, second.FilePath))
	assert.Equal(t, pngBytes, readFile(t, second.Resources[0].DiskPath))
}

func TestDownloadPageHTTPStatus(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{})
	out := t.TempDir()
	pageURL := s.srv.URL + "/missing"

	_, err := newLoader(t, 0).DownloadPage(context.Background(), pageURL, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), pageURL)

	var dlErr *loader.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, loader.KindHTTPStatus, dlErr.Kind)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written when the page itself fails")
}

func TestDownloadPageConnectivity(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	pageURL := srv.URL + "/page"
	srv.Close()

	_, err := newLoader(t, 0).DownloadPage(context.Background(), pageURL, t.TempDir())
	var connErr *loader.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, err.Error(), "cannot connect to "+pageURL)

	var dlErr *loader.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, loader.KindConnectivity, dlErr.Kind)
}

func TestDownloadPageResourceFailure(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/page":   `<html><body><img src="/ok.png"><script src="/gone.js"></script></body></html>`,
		"/ok.png": string(pngBytes),
	})
	out := t.TempDir()

	_, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL+"/page", out)
	var dlErr *loader.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, loader.KindResourceFetch, dlErr.Kind)
	assert.Contains(t, err.Error(), s.srv.URL+"/gone.js")
	assert.Contains(t, err.Error(), "404")

	_, statErr := os.Stat(filepath.Join(out, hostSlug(t, s.srv.URL)+"-page.html"))
	assert.True(t, os.IsNotExist(statErr), "markup is only written after every resource succeeded")
}

func TestDownloadPageRestrictedDir(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": "<html></html>"})
	for _, dir := range []string{"/sys", "/etc", "/usr"} {
		_, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL, dir)
		var dlErr *loader.DownloadError
		require.ErrorAs(t, err, &dlErr)
		assert.Equal(t, loader.KindRestrictedPath, dlErr.Kind)
		assert.Contains(t, err.Error(), dir)
	}
	assert.Zero(t, s.hits.Load(), "restricted directories are rejected before any request")
}

func TestDownloadPageOutputIsFile(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": "<html></html>"})
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL, file)
	var dlErr *loader.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, loader.KindFilesystem, dlErr.Kind)
	assert.Zero(t, s.hits.Load())
}

func TestDownloadPageCreatesMissingOutputDir(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": `<html><body><img src="/a.png"></body></html>`, "/a.png": "a"})
	out := filepath.Join(t.TempDir(), "nested", "out")

	result, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL, out)
	require.NoError(t, err)
	assert.FileExists(t, result.FilePath)
	assert.FileExists(t, result.Resources[0].DiskPath)
}

func TestDownloadPageDefaultsToWorkingDir(t *testing.T) {
	s := newSite(t, map[string]string{"/": "<html></html>"})
	dir := t.TempDir()
	chdir(t, dir)

	result, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL, "")
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, result.OutputDir)
	assert.FileExists(t, result.FilePath)
}

func TestDownloadPageBoundedConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	var markup strings.Builder
	markup.WriteString("<html><body>")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&markup, `<img src="/img/%d.png">`, i)
	}
	markup.WriteString("</body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(markup.String()))
			return
		}
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	result, err := newLoader(t, 3).DownloadPage(context.Background(), srv.URL, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, result.Resources, 8)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDownloadPageCanceledContext(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": "<html></html>"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader(t, 0).DownloadPage(ctx, s.srv.URL, t.TempDir())
	require.Error(t, err)
}

func TestDownloadPageKeepsNonUTF8BytesVerbatim(t *testing.T) {
	t.Parallel()

	latin1 := string([]byte{'a', 0xe9, 'b', 0xff})
	page := `<html><head><meta charset="iso-8859-1">` +
		`<link rel="stylesheet" href="/s.css"><script src="/x.js"></script></head>` +
		`<body><img src="/raw.dat"></body></html>`
	s := newTypedSite(t, map[string]string{
		"/page":    page,
		"/s.css":   latin1,
		"/x.js":    latin1,
		"/raw.dat": latin1,
	}, map[string]string{
		"/page":    "text/html; charset=iso-8859-1",
		"/s.css":   "text/css; charset=iso-8859-1",
		"/x.js":    "application/javascript; charset=windows-1251",
		"/raw.dat": "text/plain; charset=iso-8859-1",
	})

	out := t.TempDir()
	result, err := newLoader(t, 0).DownloadPage(context.Background(), s.srv.URL+"/page", out)
	require.NoError(t, err)
	require.Len(t, result.Resources, 3)
	for _, res := range result.Resources {
		assert.Equal(t, []byte(latin1), readFile(t, res.DiskPath), res.URL)
	}
	assert.Contains(t, string(readFile(t, result.FilePath)), `charset="iso-8859-1"`)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
