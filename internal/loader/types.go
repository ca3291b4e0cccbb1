package loader

import (
	"net/http"
	"time"
)

// Resource describes one asset scheduled for download.
type Resource struct {
	// URL is the absolute resource URL with the fragment removed.
	URL string
	// DiskPath is the absolute file the bytes are written to.
	DiskPath string
	// RelativePath replaces the original attribute value in the markup.
	RelativePath string
	// Filename is the base name inside the asset directory.
	Filename string
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Result describes a saved page.
type Result struct {
	// OutputDir is the absolute directory the page was saved into.
	OutputDir string
	// FilePath is the absolute path of the rewritten HTML file.
	FilePath string
	// Resources lists every asset that was downloaded.
	Resources []Resource
}

// State is a step of a page download.
type State string

// Page download states in the order they are reached.
const (
	StateStart               State = "start"
	StateDirValidated        State = "dir_validated"
	StateMainFetched         State = "main_fetched"
	StateResourcesDiscovered State = "resources_discovered"
	StateDirsCreated         State = "dirs_created"
	StateResourcesFetched    State = "resources_fetched"
	StateMarkupWritten       State = "markup_written"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// PageJob holds everything derived for one DownloadPage call.
type PageJob struct {
	ID           [16]byte
	URL          string
	OutputDir    string
	OutputDirAbs string
	Filename     string
	AssetDirName string
	Resources    []Resource
	Started      time.Time
}
