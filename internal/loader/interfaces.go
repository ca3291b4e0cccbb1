package loader

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Fetcher retrieves a URL. A non-nil error means no HTTP response was
// obtained; non-2xx responses are returned with a nil error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Response, error)
}

// Store persists files below a base directory.
type Store interface {
	EnsureDir(name string) (string, error)
	WriteFile(ctx context.Context, path string, data io.Reader) (int64, error)
}

// StoreFactory opens a Store rooted at baseDir, creating it when missing.
type StoreFactory func(baseDir string) (Store, error)

// Hasher computes digests used to disambiguate colliding filenames.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces page job IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Limiter throttles outbound requests.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Promoter decides whether a plainly fetched page needs a headless render.
type Promoter interface {
	ShouldPromote(resp Response) bool
}
