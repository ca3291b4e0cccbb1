// Package cmd defines the page-loader command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-loader/internal/app"
	"github.com/JakeFAU/page-loader/internal/config"
	"github.com/JakeFAU/page-loader/internal/loader"
	"github.com/JakeFAU/page-loader/internal/logging"
)

// App is what the root command needs from the application container.
// Tests substitute their own implementation.
type App interface {
	DownloadPage(ctx context.Context, pageURL, outputDir string) (loader.Result, error)
	Close() error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// loadConfig reads page-loader.yaml and PAGELOADER_* overrides.
var loadConfig = func() (config.Config, error) {
	return config.Load("")
}

// newRootCmd creates the page-loader command.
func newRootCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "page-loader [-o dir] <url>",
		Short: "Save a web page and its local resources for offline viewing.",
		Long: `page-loader downloads a single page, stores the images, stylesheets and
scripts served from the same host in a <page>_files directory and rewrites
the page so it opens from disk. The absolute path of the saved page is
printed on success.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, args[0], outputDir)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default is the current working directory)")

	return cmd
}

func runDownload(cmd *cobra.Command, pageURL, outputDir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	}()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	result, err := a.DownloadPage(ctx, pageURL, outputDir)
	if err != nil {
		return err
	}

	logger.Info("page saved",
		zap.String("url", pageURL),
		zap.String("path", result.FilePath),
		zap.Int("resources", len(result.Resources)),
	)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), result.FilePath)
	return err
}

// run executes the command with explicit arguments and streams and returns
// the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// Execute is the main entry point. It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
