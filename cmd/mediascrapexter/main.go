// cmd/mediascrapexter/main.go
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/valpere/MediaScrapexter/internal/errors"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type globalOptions struct {
	verbose  bool
	logLevel string
	logJSON  bool
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "mediascrapexter",
		Short: "Fetch pages and collect their images, video, audio and documents",
		Long: `MediaScrapexter fetches web pages over HTTP or a headless browser, extracts
selector fields and every media reference, stores the media under a local root
and saves one record per page to a file or database backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(opts, "")
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging and technical error details")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")

	root.AddCommand(
		newRunCmd(opts),
		newExtractCmd(opts),
		newValidateCmd(opts),
		newTemplateCmd(),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// configureLogging applies flags over the config file's log_level.
func configureLogging(opts *globalOptions, configLevel string) {
	level := configLevel
	if level == "" {
		level = "info"
	}
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if opts.verbose {
		level = "debug"
	}
	utils.SetLevel(utils.ParseLogLevel(level))
	if opts.logJSON {
		utils.SetJSONFormat()
	}
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	opts := &globalOptions{}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return apperrors.ExitOK
	}

	service := apperrors.NewService().WithVerbose(opts.verbose)
	fmt.Fprint(stderr, service.FormatErrorForCLI(err))
	return service.GetExitCode(err)
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
