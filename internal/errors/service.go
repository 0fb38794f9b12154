// internal/errors/service.go

// Package errors turns pipeline failures into CLI messages, exit codes and
// run-level failure decisions.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/media"
	"github.com/valpere/MediaScrapexter/internal/scraper"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Exit codes returned by the CLI.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitNetwork    = 3
	ExitParse      = 4
	ExitOutput     = 5
	ExitValidation = 6
	ExitRateLimit  = 7
	ExitAuth       = 8
	ExitCanceled   = 130
)

// Kind is the coarse class of a failure.
type Kind int

const (
	KindGeneral Kind = iota
	KindConfig
	KindValidation
	KindNetwork
	KindTimeout
	KindRateLimit
	KindAuth
	KindParse
	KindOutput
	KindMediaStorage
	KindCanceled
)

// FailurePolicy decides when page failures abort a run.
type FailurePolicy struct {
	// Mode is "continue" (never abort) or "stop" (abort on the first failure)
	Mode string `yaml:"mode" json:"mode"`

	// MaxErrorRate aborts a continuing run once failed/total exceeds it; 0 disables
	MaxErrorRate float64 `yaml:"max_error_rate" json:"max_error_rate"`

	// MinSample is the number of pages required before the rate applies
	MinSample int `yaml:"min_sample" json:"min_sample"`
}

// ErrRunAborted is returned by CheckFailures when the policy trips.
var ErrRunAborted = stderrors.New("run aborted by failure policy")

// Service classifies errors for display and enforces the failure policy.
type Service struct {
	policy  FailurePolicy
	verbose bool
}

// NewService creates a service that keeps going on page failures.
func NewService() *Service {
	return &Service{policy: FailurePolicy{Mode: "continue", MinSample: 10}}
}

// WithVerbose includes technical details in CLI output.
func (s *Service) WithVerbose(verbose bool) *Service {
	s.verbose = verbose
	return s
}

// WithPolicy replaces the failure policy.
func (s *Service) WithPolicy(p FailurePolicy) *Service {
	if p.Mode == "" {
		p.Mode = "continue"
	}
	s.policy = p
	return s
}

// CheckFailures returns ErrRunAborted when failed out of total pages
// breaks the policy.
func (s *Service) CheckFailures(failed, total int) error {
	if failed == 0 {
		return nil
	}
	if s.policy.Mode == "stop" {
		return fmt.Errorf("%w: %d page(s) failed", ErrRunAborted, failed)
	}
	if s.policy.MaxErrorRate > 0 && total >= s.policy.MinSample {
		if rate := float64(failed) / float64(total); rate > s.policy.MaxErrorRate {
			return fmt.Errorf("%w: error rate %.0f%% exceeds %.0f%%", ErrRunAborted, rate*100, s.policy.MaxErrorRate*100)
		}
	}
	return nil
}

// Classify maps err onto a Kind, preferring typed errors over message text.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneral
	}

	var (
		validationErrs *config.ValidationErrors
		fetchErr       *scraper.FetchError
		structErr      *utils.StructuredError
		netErr         net.Error
	)
	switch {
	case stderrors.Is(err, context.Canceled):
		return KindCanceled
	case stderrors.As(err, &validationErrs):
		return KindValidation
	case stderrors.Is(err, media.ErrIO):
		return KindMediaStorage
	case stderrors.Is(err, media.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case stderrors.As(err, &fetchErr) && fetchErr.StatusCode != 0:
		return kindForStatus(fetchErr.StatusCode)
	case stderrors.As(err, &structErr):
		if k, ok := kindForCode(structErr.Code); ok {
			return k
		}
	case stderrors.As(err, &netErr):
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

func kindForStatus(code int) Kind {
	switch {
	case code == 429:
		return KindRateLimit
	case code == 401 || code == 403:
		return KindAuth
	default:
		return KindNetwork
	}
}

func kindForCode(code utils.ErrorCode) (Kind, bool) {
	switch code {
	case utils.ErrCodeInvalidConfig, utils.ErrCodeMissingConfig, utils.ErrCodeConfigSyntax:
		return KindConfig, true
	case utils.ErrCodeValidation:
		return KindValidation, true
	case utils.ErrCodeNetworkTimeout:
		return KindTimeout, true
	case utils.ErrCodeNetworkUnreachable, utils.ErrCodePageFetch, utils.ErrCodeHTTPStatus:
		return KindNetwork, true
	case utils.ErrCodeExtractionFailed:
		return KindParse, true
	case utils.ErrCodeOutputFailed, utils.ErrCodeDatabaseError:
		return KindOutput, true
	case utils.ErrCodeMediaStorage:
		return KindMediaStorage, true
	case utils.ErrCodeContextCanceled:
		return KindCanceled, true
	}
	return KindGeneral, false
}

func classifyMessage(msg string) Kind {
	switch {
	case strings.Contains(msg, "yaml") || strings.Contains(msg, "config"):
		return KindConfig
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		return KindNetwork
	case strings.Contains(msg, "selector") || strings.Contains(msg, "parse"):
		return KindParse
	case strings.Contains(msg, "output") || strings.Contains(msg, "database"):
		return KindOutput
	}
	return KindGeneral
}

// GetExitCode returns appropriate exit code for error
func (s *Service) GetExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch Classify(err) {
	case KindConfig:
		return ExitConfig
	case KindValidation:
		return ExitValidation
	case KindNetwork, KindTimeout:
		return ExitNetwork
	case KindParse:
		return ExitParse
	case KindOutput, KindMediaStorage:
		return ExitOutput
	case KindRateLimit:
		return ExitRateLimit
	case KindAuth:
		return ExitAuth
	case KindCanceled:
		return ExitCanceled
	}
	return ExitGeneral
}

// GetUserFriendlyError converts technical errors to user-friendly messages.
// A structured error's user message replaces the generic one for its kind.
func (s *Service) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	title, message, suggestions = describe(Classify(err))
	var structErr *utils.StructuredError
	if stderrors.As(err, &structErr) && structErr.UserMessage != "" {
		message = structErr.UserMessage
	}
	return title, message, suggestions
}

func describe(kind Kind) (title, message string, suggestions []string) {
	switch kind {
	case KindValidation:
		return "Invalid Configuration",
			"The configuration file did not pass validation.",
			[]string{
				"Run 'mediascrapexter validate' to list every problem",
				"Generate a fresh example with 'mediascrapexter template'",
			}
	case KindConfig:
		return "Configuration Error",
			"The configuration file could not be read.",
			[]string{
				"Check YAML indentation (use spaces, not tabs)",
				"Ensure proper quoting of string values",
				"Make sure every ${VAR} referenced is set",
			}
	case KindTimeout:
		return "Connection Timeout",
			"The request timed out while trying to connect to the website.",
			[]string{
				"Check your internet connection",
				"Increase scraper.timeout in the configuration",
			}
	case KindNetwork:
		return "Connection Failed",
			"The website could not be reached.",
			[]string{
				"Check if the URL is spelled correctly",
				"Check if the website is accessible in a browser",
				"Try using a proxy server",
			}
	case KindRateLimit:
		return "Rate Limit Exceeded",
			"You're making requests too quickly.",
			[]string{
				"Increase scraper.delay",
				"Lower concurrency",
			}
	case KindAuth:
		return "Access Denied",
			"The website refused access to the page.",
			[]string{
				"Check scraper.headers and scraper.cookies",
				"Try the browser mode",
			}
	case KindParse:
		return "Extraction Error",
			"A selector or page could not be parsed.",
			[]string{"Check the CSS selectors in scraper.selectors"}
	case KindMediaStorage:
		return "Media Storage Error",
			"Media files could not be written.",
			[]string{"Check permissions and free space under storage.media_root"}
	case KindOutput:
		return "Output Error",
			"The results could not be saved.",
			[]string{
				"Check the output path or connection string",
				"Set output.fallback to a file format",
			}
	case KindCanceled:
		return "Interrupted", "The run was canceled before it finished.", nil
	}

	return "Unexpected Error",
		"An unexpected error occurred during the operation.",
		[]string{
			"Try running the command again",
			"Re-run with --verbose for technical details",
		}
}

// FormatErrorForCLI formats error for command-line display
func (s *Service) FormatErrorForCLI(err error) string {
	title, message, suggestions := s.GetUserFriendlyError(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n%s\n", title, message)

	var validationErrs *config.ValidationErrors
	if stderrors.As(err, &validationErrs) {
		b.WriteString("\n" + validationErrs.Error() + "\n")
	} else if s.verbose {
		fmt.Fprintf(&b, "\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}
	return b.String()
}
