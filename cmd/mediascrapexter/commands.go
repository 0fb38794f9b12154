// cmd/mediascrapexter/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/monitoring"
	"github.com/valpere/MediaScrapexter/internal/output"
	"github.com/valpere/MediaScrapexter/internal/pipeline"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

type runOptions struct {
	urls        []string
	concurrency int
	format      string
	output      string
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:     "run <config.yaml>",
		Aliases: []string{"scrape"},
		Short:   "Scrape every URL in a configuration and save the records",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, opts, ro, args[0])
		},
	}
	cmd.Flags().StringSliceVar(&ro.urls, "url", nil, "additional URL to scrape (repeatable)")
	cmd.Flags().IntVar(&ro.concurrency, "concurrency", 0, "pages processed in parallel; overrides the config file")
	cmd.Flags().StringVar(&ro.format, "format", "", "output format ("+strings.Join(config.OutputFormats(), ", ")+")")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "output path; overrides the config file")
	return cmd
}

func runJob(cmd *cobra.Command, opts *globalOptions, ro *runOptions, path string) error {
	cfg, err := loadConfig(opts, path, config.LoadFromFile)
	if err != nil {
		return err
	}

	cfg.URLs = append(cfg.URLs, ro.urls...)
	if ro.concurrency > 0 {
		cfg.Concurrency = ro.concurrency
	}
	if ro.format != "" && ro.format != cfg.Output.Format {
		cfg.Output.Format = ro.format
		if ro.output == "" {
			cfg.Output.Path = output.PathForFormat(cfg.Output.Path, ro.format)
		}
	}
	if ro.output != "" {
		cfg.Output.Path = ro.output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	urls, err := cfg.ResolveURLs()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := utils.NewComponentLogger("run").WithField("job", cfg.Name)

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics("")
		shutdown := serveMetrics(cfg.Metrics, metrics, logger)
		defer shutdown()
	}

	p, err := pipeline.NewFromConfig(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	logger.Infof("scraping %d URLs with concurrency %d", len(urls), cfg.Concurrency)
	summary, runErr := p.Run(ctx, urls)
	closeErr := p.Close()

	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	}
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// serveMetrics exposes metrics on their own listener for the duration of a run.
func serveMetrics(cfg config.MetricsConfig, metrics *monitoring.Metrics, logger utils.Logger) func() {
	router := mux.NewRouter()
	router.Handle(cfg.Path, metrics.Handler()).Methods(http.MethodGet)
	srv := &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("metrics server stopped: %v", err)
		}
	}()
	logger.Infof("metrics available at %s%s", cfg.Address, cfg.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}
}

type extractOptions struct {
	mediaRoot  string
	noDownload bool
	mode       string
	selectors  []string
	insecure   bool
	htmlFile   string
	pretty     bool
}

func newExtractCmd(opts *globalOptions) *cobra.Command {
	eo := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Process a single page and print its record as JSON",
		Long: `Fetch one page, store its media and print the resulting record to stdout.
With --html the page is read from a file and <url> is used only as its base URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return extractPage(cmd, opts, eo, args[0])
		},
	}
	cmd.Flags().StringVar(&eo.mediaRoot, "media-root", "media", "directory media files are stored under")
	cmd.Flags().BoolVar(&eo.noDownload, "no-download", false, "report media without downloading it")
	cmd.Flags().StringVar(&eo.mode, "mode", config.ModeHTTP, "fetch mode (http, browser)")
	cmd.Flags().StringArrayVar(&eo.selectors, "selector", nil, "field to extract as name=css (repeatable)")
	cmd.Flags().BoolVar(&eo.insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().StringVar(&eo.htmlFile, "html", "", "read the page from this file instead of fetching it")
	cmd.Flags().BoolVar(&eo.pretty, "pretty", true, "indent the JSON record")
	return cmd
}

func extractPage(cmd *cobra.Command, opts *globalOptions, eo *extractOptions, pageURL string) error {
	configureLogging(opts, "")

	cfg := config.Default("extract")
	cfg.URLs = []string{pageURL}
	cfg.Scraper.Mode = eo.mode
	cfg.Storage.MediaRoot = eo.mediaRoot
	cfg.Storage.DownloadMedia = config.BoolPtr(!eo.noDownload)
	if eo.insecure {
		cfg.Scraper.VerifyTLS = config.BoolPtr(false)
	}
	if len(eo.selectors) > 0 {
		cfg.Scraper.Selectors = make(map[string]string, len(eo.selectors))
		for _, s := range eo.selectors {
			name, css, ok := strings.Cut(s, "=")
			if !ok || name == "" || css == "" {
				return &config.ValidationErrors{Result: &config.ValidationResult{
					Errors: []config.ValidationError{{Field: "selector", Value: s, Message: "expected name=css"}},
				}}
			}
			cfg.Scraper.Selectors[name] = css
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	saver := output.NewStreamSaver(cmd.OutOrStdout(), eo.pretty)
	p, err := pipeline.NewFromConfigWithSaver(cfg, saver, nil, utils.NewComponentLogger("extract"))
	if err != nil {
		return err
	}
	defer p.Close()

	var rec output.Record
	if eo.htmlFile != "" {
		html, readErr := os.ReadFile(eo.htmlFile)
		if readErr != nil {
			return fmt.Errorf("failed to read HTML file: %w", readErr)
		}
		rec, err = p.ProcessHTML(ctx, pageURL, string(html))
	} else {
		rec, err = p.ProcessPage(ctx, pageURL)
	}

	if saveErr := saver.Save(ctx, []output.Record{rec}); saveErr != nil && err == nil {
		err = saveErr
	}
	return err
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a configuration file without scraping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(opts, "")
			path := args[0]

			cfg, err := config.LoadFromFile(path)
			out := cmd.OutOrStdout()

			var verrs *config.ValidationErrors
			if errors.As(err, &verrs) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Suggestions:")
				for _, s := range config.GetValidationSuggestions(verrs.Result) {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", s)
				}
				return err
			}
			if err != nil {
				return err
			}

			for _, w := range cfg.ValidateWithDetails().Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			fmt.Fprintf(out, "Configuration '%s' is valid\n", path)
			return nil
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var (
		kind string
		dest string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print a starter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			known := false
			for _, t := range config.TemplateTypes() {
				known = known || t == kind
			}
			if !known {
				return fmt.Errorf("unknown template type %q (choose from %s)", kind, strings.Join(config.TemplateTypes(), ", "))
			}

			cfg := config.GenerateTemplate(kind)
			if dest != "" {
				if err := config.SaveToFile(&cfg, dest); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", dest)
				return nil
			}
			return config.SaveToWriter(&cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&kind, "type", "basic", "template type ("+strings.Join(config.TemplateTypes(), ", ")+")")
	cmd.Flags().StringVarP(&dest, "output", "o", "", "write the template to a file instead of stdout")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MediaScrapexter %s\nBuild time: %s\nGit commit: %s\n", version, buildTime, gitCommit)
		},
	}
}

// loadConfig reads path with load and applies its log_level unless a flag
// overrides it.
func loadConfig(opts *globalOptions, path string, load func(string) (*config.Config, error)) (*config.Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	configureLogging(opts, cfg.LogLevel)
	return cfg, nil
}
