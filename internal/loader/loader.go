package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-loader/internal/clock/system"
	"github.com/JakeFAU/page-loader/internal/hash/sha256"
	"github.com/JakeFAU/page-loader/internal/id/uuid"
	"github.com/JakeFAU/page-loader/internal/naming"
	"github.com/JakeFAU/page-loader/internal/policy/outdir"
	"github.com/JakeFAU/page-loader/internal/progress"
	"github.com/JakeFAU/page-loader/internal/storage/local"
)

// Config controls Loader behavior.
type Config struct {
	// Concurrency bounds parallel resource downloads; 0 means unbounded.
	Concurrency int
}

// Dependencies are the collaborators of a Loader. Only Fetcher is required.
type Dependencies struct {
	Fetcher      Fetcher
	Renderer     Fetcher
	Promoter     Promoter
	Hasher       Hasher
	IDs          IDGenerator
	Clock        Clock
	Limiter      Limiter
	Observer     FetchObserver
	Emitter      progress.Emitter
	StoreFactory StoreFactory
	Tracer       trace.Tracer
}

// Loader saves pages to disk. It is safe for concurrent use; every
// DownloadPage call owns its own job state.
type Loader struct {
	cfg          Config
	fetcher      Fetcher
	renderer     Fetcher
	promoter     Promoter
	hasher       Hasher
	ids          IDGenerator
	clock        Clock
	limiter      Limiter
	observer     FetchObserver
	emitter      progress.Emitter
	storeFactory StoreFactory
	tracer       trace.Tracer
	logger       *zap.Logger
}

// New constructs a Loader, filling unset optional dependencies with the
// production defaults.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Loader, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("loader: fetcher is required")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("loader: concurrency must be >= 0, got %d", cfg.Concurrency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = LocalStoreFactory
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/JakeFAU/page-loader/internal/loader")
	}
	return &Loader{
		cfg:          cfg,
		fetcher:      deps.Fetcher,
		renderer:     deps.Renderer,
		promoter:     deps.Promoter,
		hasher:       deps.Hasher,
		ids:          deps.IDs,
		clock:        deps.Clock,
		limiter:      deps.Limiter,
		observer:     deps.Observer,
		emitter:      deps.Emitter,
		storeFactory: deps.StoreFactory,
		tracer:       deps.Tracer,
		logger:       logger,
	}, nil
}

// LocalStoreFactory opens a local filesystem store rooted at baseDir.
func LocalStoreFactory(baseDir string) (Store, error) {
	store, err := local.New(local.Config{BaseDir: baseDir})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// DownloadPage saves pageURL into outputDir, which defaults to the working
// directory when empty. Every failure is returned as a *DownloadError.
func (l *Loader) DownloadPage(ctx context.Context, pageURL, outputDir string) (Result, error) {
	job := &PageJob{URL: pageURL, OutputDir: outputDir, Started: l.clock.Now()}
	id, err := l.ids.NewRawID()
	if err != nil {
		return Result{}, newDownloadError(pageURL, StateStart, fmt.Errorf("generate job id: %w", err))
	}
	job.ID = progress.UUIDToBytes(id)
	logger := l.logger.With(zap.String("job_id", id.String()), zap.String("url", pageURL))
	run := &pageRun{Loader: l, job: job, logger: logger, state: StateStart}

	ctx, span := l.tracer.Start(ctx, "DownloadPage", trace.WithAttributes(
		attribute.String("job.id", id.String()),
		attribute.String("url.full", pageURL),
	))
	defer span.End()

	result, err := run.execute(ctx)
	if err != nil {
		dlErr := run.fail(err)
		span.RecordError(dlErr)
		span.SetStatus(codes.Error, string(dlErr.Kind))
		return Result{}, dlErr
	}
	span.SetAttributes(attribute.Int("page.resources", len(result.Resources)))
	return result, nil
}

// pageRun carries the mutable state of one DownloadPage call.
type pageRun struct {
	*Loader
	job    *PageJob
	logger *zap.Logger
	site   string
	state  State
}

func (r *pageRun) execute(ctx context.Context) (Result, error) {
	r.emit(progress.StagePageStart, nil)

	target, err := parsePageURL(r.job.URL)
	if err != nil {
		return Result{}, err
	}
	r.site = strings.ToLower(target.Hostname())

	absDir, err := r.validateDir()
	if err != nil {
		return Result{}, err
	}
	r.job.OutputDirAbs = absDir
	r.job.Filename = naming.PageFilename(target)
	r.job.AssetDirName = naming.PageAssetDirName(target)
	r.transition(StateDirValidated)

	doc, err := r.fetchDocument(ctx, target)
	if err != nil {
		return Result{}, err
	}
	r.transition(StateMainFetched)

	assetsDirAbs := filepath.Join(absDir, r.job.AssetDirName)
	r.job.Resources = NewDiscoverer(r.hasher, r.logger).
		DiscoverResources(doc, target, r.job.AssetDirName, assetsDirAbs)
	r.logger.Debug("resources discovered", zap.Int("count", len(r.job.Resources)))
	r.transition(StateResourcesDiscovered)

	store, err := r.storeFactory(absDir)
	if err != nil {
		return Result{}, &FilesystemError{Path: absDir, Err: err}
	}
	if _, err := store.EnsureDir(r.job.AssetDirName); err != nil {
		return Result{}, &FilesystemError{Path: assetsDirAbs, Err: err}
	}
	r.transition(StateDirsCreated)

	runner := &Runner{
		Concurrency: r.cfg.Concurrency,
		JobID:       r.job.ID,
		Site:        r.site,
		Emitter:     r.emitter,
		Clock:       r.clock,
		Logger:      r.logger,
	}
	fetcher := NewResourceFetcher(r.fetcher, store, r.limiter, r.observer)
	if err := runner.RunAll(ctx, r.job.Resources, r.traced(fetcher.FetchResource)); err != nil {
		return Result{}, err
	}
	r.transition(StateResourcesFetched)

	html, err := doc.Html()
	if err != nil {
		return Result{}, fmt.Errorf("serialize markup: %w", err)
	}
	filePath := filepath.Join(absDir, r.job.Filename)
	if _, err := store.WriteFile(ctx, filePath, strings.NewReader(html)); err != nil {
		return Result{}, &FilesystemError{Path: filePath, Err: err}
	}
	r.transition(StateMarkupWritten)

	r.state = StateDone
	r.logger.Debug("page saved", zap.String("path", filePath))
	r.emit(progress.StagePageDone, func(evt *progress.Event) {
		evt.Dur = r.clock.Now().Sub(r.job.Started)
	})
	return Result{OutputDir: absDir, FilePath: filePath, Resources: r.job.Resources}, nil
}

// validateDir applies the restricted-path guard, resolves the directory to
// an absolute path and rejects an existing non-directory.
func (r *pageRun) validateDir() (string, error) {
	dir, err := outdir.SanitizeOutputDir(r.job.OutputDir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return "", &FilesystemError{Path: ".", Err: err}
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &FilesystemError{Path: dir, Err: err}
	}
	if err := local.CheckDir(abs); err != nil {
		return "", &FilesystemError{Path: abs, Err: err}
	}
	return abs, nil
}

// fetchDocument retrieves and parses the page.
func (r *pageRun) fetchDocument(ctx context.Context, target *url.URL) (*goquery.Document, error) {
	resp, err := r.fetchMarkup(ctx, target.String())
	if err != nil {
		return nil, err
	}
	r.logger.Debug("page fetched",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("dur", resp.Duration),
	)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// fetchMarkup picks the source of the main document. Without a promoter the
// renderer is preferred; with one, the plain response is rendered only when
// the promoter asks for it. Renderer failures always fall back to plain HTTP.
func (r *pageRun) fetchMarkup(ctx context.Context, rawURL string) (Response, error) {
	if r.renderer == nil {
		return fetchChecked(ctx, r.fetcher, r.limiter, r.observer, rawURL)
	}
	if r.promoter == nil {
		resp, err := r.render(ctx, rawURL)
		if err == nil || ctx.Err() != nil {
			return resp, err
		}
		return fetchChecked(ctx, r.fetcher, r.limiter, r.observer, rawURL)
	}

	plain, err := fetchChecked(ctx, r.fetcher, r.limiter, r.observer, rawURL)
	if err != nil || !r.promoter.ShouldPromote(plain) {
		return plain, err
	}
	r.logger.Debug("promoting page to headless render")
	rendered, err := r.render(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, err
		}
		return plain, nil
	}
	return rendered, nil
}

func (r *pageRun) render(ctx context.Context, rawURL string) (Response, error) {
	resp, err := fetchChecked(ctx, r.renderer, r.limiter, r.observer, rawURL)
	if err != nil && ctx.Err() == nil {
		r.logger.Warn("headless render failed, falling back to http", zap.Error(err))
	}
	return resp, err
}

// traced wraps task in a span per resource.
func (r *pageRun) traced(task Task) Task {
	return func(ctx context.Context, res Resource) (Download, error) {
		ctx, span := r.tracer.Start(ctx, "FetchResource", trace.WithAttributes(
			attribute.String("url.full", res.URL),
			attribute.String("file.name", res.Filename),
		))
		defer span.End()

		dl, err := task(ctx, res)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return dl, err
		}
		span.SetAttributes(
			attribute.Int("http.response.status_code", dl.StatusCode),
			attribute.Int64("file.size", dl.Bytes),
		)
		return dl, nil
	}
}

func (r *pageRun) transition(next State) {
	r.state = next
	r.logger.Debug("page state", zap.String("state", string(next)))
	r.emit(progress.StagePageState, func(evt *progress.Event) {
		evt.Note = string(next)
	})
}

func (r *pageRun) fail(err error) *DownloadError {
	dlErr := newDownloadError(r.job.URL, r.state, err)
	r.logger.Debug("page failed",
		zap.String("state", string(r.state)),
		zap.String("kind", string(dlErr.Kind)),
		zap.Error(err),
	)
	r.emit(progress.StagePageError, func(evt *progress.Event) {
		evt.Dur = r.clock.Now().Sub(r.job.Started)
		evt.Note = dlErr.Error()
	})
	r.state = StateFailed
	return dlErr
}

func (r *pageRun) emit(stage progress.Stage, mutate func(*progress.Event)) {
	evt := progress.Event{
		JobID: r.job.ID,
		TS:    r.clock.Now(),
		Stage: stage,
		Site:  r.site,
		URL:   r.job.URL,
	}
	if mutate != nil {
		mutate(&evt)
	}
	r.emitter.Emit(evt)
}

func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("page url has no host")
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}
