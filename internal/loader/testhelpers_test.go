package loader

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/JakeFAU/page-loader/internal/progress"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) byStage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]Response
	errs  map[string]error
	calls []string
}

func (m *mapFetcher) Fetch(_ context.Context, rawURL string) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rawURL)
	if err, ok := m.errs[rawURL]; ok {
		return Response{}, err
	}
	resp, ok := m.pages[rawURL]
	if !ok {
		return Response{URL: rawURL, StatusCode: 404}, nil
	}
	return resp, nil
}

type memStore struct {
	mu       sync.Mutex
	files    map[string][]byte
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (s *memStore) EnsureDir(name string) (string, error) {
	return name, nil
}

func (s *memStore) WriteFile(_ context.Context, path string, data io.Reader) (int64, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = b
	return int64(len(b)), nil
}

type failingLimiter struct{}

func (failingLimiter) Wait(context.Context, string) error {
	return errors.New("limiter closed")
}

type countingObserver struct {
	mu    sync.Mutex
	codes []int
}

func (o *countingObserver) ObserveFetch(_ string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}
